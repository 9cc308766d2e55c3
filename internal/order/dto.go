package order

import "time"

// CreateItem payload of one requested line.
// swagger:model CreateItem
type CreateItem struct {
	MenuItemID  string   `json:"menu_item_id" example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Quantity    int      `json:"quantity"     example:"2"`
	Notes       string   `json:"notes,omitempty"`
	ModifierIDs []string `json:"modifier_ids,omitempty"`
}

// CreateRequest payload of order creation.
// swagger:model CreateRequest
type CreateRequest struct {
	TableID       string       `json:"table_id,omitempty"`
	VenueID       string       `json:"venue_id,omitempty"`
	CustomerName  string       `json:"customer_name,omitempty"`
	CustomerEmail string       `json:"customer_email,omitempty"`
	CustomerPhone string       `json:"customer_phone,omitempty"`
	RoomNumber    string       `json:"room_number,omitempty"`
	PartySize     *int         `json:"party_size,omitempty"`
	Notes         string       `json:"notes,omitempty"`
	Items         []CreateItem `json:"items"`
}

// Patch is a partial update of order-level fields; nil means "no change".
// swagger:model Patch
type Patch struct {
	CustomerName  *string        `json:"customer_name,omitempty"`
	CustomerEmail *string        `json:"customer_email,omitempty"`
	CustomerPhone *string        `json:"customer_phone,omitempty"`
	RoomNumber    *string        `json:"room_number,omitempty"`
	PartySize     *int           `json:"party_size,omitempty"`
	Notes         *string        `json:"notes,omitempty"`
	PaymentStatus *PaymentStatus `json:"payment_status,omitempty"`
}

// ItemPatch is a partial update of one line item.
// swagger:model ItemPatch
type ItemPatch struct {
	Quantity *int        `json:"quantity,omitempty"`
	Notes    *string     `json:"notes,omitempty"`
	Status   *ItemStatus `json:"status,omitempty"`
}

// Filter is what a caller may ask of a listing; the access scope narrows it
// before it reaches storage.
type Filter struct {
	OrganizationID string
	VenueID        string
	TableID        string
	Status         Status
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	From           time.Time
	To             time.Time
}

type Page struct {
	Page     int
	PageSize int
}

// ListResult is the paginated listing response.
// swagger:model ListResult
type ListResult struct {
	Orders      []Order `json:"orders"`
	Page        int     `json:"page"`
	PageSize    int     `json:"page_size"`
	Total       int     `json:"total"`
	HasNext     bool    `json:"has_next"`
	HasPrevious bool    `json:"has_previous"`
}
