package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusServed    Status = "served"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady,
		StatusServed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the order is soft-closed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentUnpaid, PaymentPaid, PaymentRefunded:
		return true
	}
	return false
}

type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemPreparing ItemStatus = "preparing"
	ItemReady     ItemStatus = "ready"
	ItemServed    ItemStatus = "served"
)

func (s ItemStatus) Valid() bool {
	switch s {
	case ItemPending, ItemPreparing, ItemReady, ItemServed:
		return true
	}
	return false
}

// Order is one customer transaction. TotalAmount is kept equal to the sum of
// the items' total prices by every committed mutation; decimals marshal as
// strings (NUMERIC in Postgres) to avoid rounding errors.
type Order struct {
	ID            string          `json:"id"`
	TableID       string          `json:"table_id,omitempty"`
	VenueID       string          `json:"venue_id,omitempty"`
	CustomerName  string          `json:"customer_name,omitempty"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	RoomNumber    string          `json:"room_number,omitempty"`
	PartySize     *int            `json:"party_size,omitempty"`
	Status        Status          `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	Items         []Item          `json:"items,omitempty"`
}

// Item is one line of an order. UnitPrice is a snapshot taken at creation;
// catalog price changes never alter it.
type Item struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"order_id"`
	MenuItemID string          `json:"menu_item_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Notes      string          `json:"notes,omitempty"`
	Status     ItemStatus      `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	Modifiers  []ItemModifier  `json:"modifiers,omitempty"`
}

// ItemModifier is an add-on applied to one item, with the same snapshot-price
// rule as the item itself.
type ItemModifier struct {
	ID          string          `json:"id"`
	OrderItemID string          `json:"order_item_id"`
	ModifierID  string          `json:"modifier_id"`
	Price       decimal.Decimal `json:"price"`
}
