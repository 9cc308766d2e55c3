package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("order not found")
	ErrItemNotFound = errors.New("order item not found")
)

// Repository is the order aggregate's storage contract. Every total-amount
// mutation is expressed as an increment relative to the previous value, never
// as a recomputed absolute, so concurrent mutations on one order commute.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, p Predicate, page Page) (*ListResult, error)
	AddItems(ctx context.Context, orderID string, items []Item) error
	UpdateItemQuantity(ctx context.Context, orderID, itemID string, quantity int, notes *string) (*Item, error)
	UpdateItemStatus(ctx context.Context, orderID, itemID string, status ItemStatus) (*Item, error)
	RemoveItems(ctx context.Context, orderID string, itemIDs []string) error
	AddModifiers(ctx context.Context, orderID, itemID string, mods []ItemModifier) error
	RemoveModifiers(ctx context.Context, orderID, itemID string, modifierIDs []string) error
	Update(ctx context.Context, orderID string, patch Patch) error
	UpdateStatus(ctx context.Context, orderID string, status Status) error
	Delete(ctx context.Context, orderID string) error
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) Create(ctx context.Context, o *Order) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
    INSERT INTO orders
      (id, table_id, venue_id, customer_name, customer_email, customer_phone,
       room_number, party_size, status, payment_status, total_amount, notes,
       created_at, updated_at)
    VALUES ($1,NULLIF($2::text,'')::uuid,NULLIF($3::text,'')::uuid,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW())
  `, o.ID, o.TableID, o.VenueID, o.CustomerName, o.CustomerEmail, o.CustomerPhone,
		o.RoomNumber, o.PartySize, string(o.Status), string(o.PaymentStatus), o.TotalAmount.String(), o.Notes); err != nil {
		return err
	}

	for i := range o.Items {
		if err := insertItem(ctx, tx, &o.Items[i]); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func insertItem(ctx context.Context, tx pgx.Tx, it *Item) error {
	if _, err := tx.Exec(ctx, `
    INSERT INTO order_items
      (id, order_id, menu_item_id, quantity, unit_price, total_price, notes, status, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
  `, it.ID, it.OrderID, it.MenuItemID, it.Quantity, it.UnitPrice.String(),
		it.TotalPrice.String(), it.Notes, string(it.Status)); err != nil {
		return err
	}
	for _, m := range it.Modifiers {
		if _, err := tx.Exec(ctx, `
      INSERT INTO order_item_modifiers (id, order_item_id, modifier_id, price)
      VALUES ($1,$2,$3,$4)
    `, m.ID, it.ID, m.ModifierID, m.Price.String()); err != nil {
			return err
		}
	}
	return nil
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	var o Order
	var total string
	err := r.db.QueryRow(ctx, `
    SELECT id, COALESCE(table_id::text,''), COALESCE(venue_id::text,''),
           customer_name, customer_email, customer_phone, room_number,
           party_size, status, payment_status, total_amount::text, notes,
           created_at, updated_at, completed_at
    FROM orders WHERE id=$1
  `, id).Scan(&o.ID, &o.TableID, &o.VenueID, &o.CustomerName, &o.CustomerEmail,
		&o.CustomerPhone, &o.RoomNumber, &o.PartySize, &o.Status, &o.PaymentStatus,
		&total, &o.Notes, &o.CreatedAt, &o.UpdatedAt, &o.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	if o.Items, err = r.loadItems(ctx, id); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PGRepo) loadItems(ctx context.Context, orderID string) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
    SELECT id, order_id, menu_item_id, quantity, unit_price::text, total_price::text,
           notes, status, created_at
    FROM order_items WHERE order_id=$1 ORDER BY created_at, id
  `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	byID := map[string]int{}
	for rows.Next() {
		var it Item
		var unit, total string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Quantity,
			&unit, &total, &it.Notes, &it.Status, &it.CreatedAt); err != nil {
			return nil, err
		}
		if it.UnitPrice, err = decimal.NewFromString(unit); err != nil {
			return nil, err
		}
		if it.TotalPrice, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		byID[it.ID] = len(items)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}

	mrows, err := r.db.Query(ctx, `
    SELECT m.id, m.order_item_id, m.modifier_id, m.price::text
    FROM order_item_modifiers m
    JOIN order_items i ON i.id = m.order_item_id
    WHERE i.order_id=$1 ORDER BY m.id
  `, orderID)
	if err != nil {
		return nil, err
	}
	defer mrows.Close()
	for mrows.Next() {
		var m ItemModifier
		var price string
		if err := mrows.Scan(&m.ID, &m.OrderItemID, &m.ModifierID, &price); err != nil {
			return nil, err
		}
		if m.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if idx, ok := byID[m.OrderItemID]; ok {
			items[idx].Modifiers = append(items[idx].Modifiers, m)
		}
	}
	return items, mrows.Err()
}

// listWhere keeps one static query shape; empty parameters disable their
// clause. Venue derivation goes through the table relation when the order has
// no direct venue reference.
const listWhere = `
    FROM orders o
    LEFT JOIN tables t ON t.id = o.table_id
    JOIN venues v ON v.id = COALESCE(o.venue_id, t.venue_id)
    WHERE v.organization_id = $1
      AND ($2::uuid[] IS NULL OR v.id = ANY($2))
      AND ($3 = '' OR o.table_id::text = $3)
      AND ($4 = '' OR o.status = $4)
      AND ($5 = '' OR o.customer_name ILIKE '%'||$5||'%')
      AND ($6 = '' OR o.customer_email = $6)
      AND ($7 = '' OR o.customer_phone = $7)
      AND ($8::timestamptz IS NULL OR o.created_at >= $8)
      AND ($9::timestamptz IS NULL OR o.created_at <= $9)
`

func (r *PGRepo) List(ctx context.Context, p Predicate, page Page) (*ListResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if page.Page < 1 {
		page.Page = 1
	}
	if page.PageSize < 1 || page.PageSize > 100 {
		page.PageSize = 20
	}
	res := &ListResult{Orders: []Order{}, Page: page.Page, PageSize: page.PageSize}
	if p.MatchesNothing() {
		return res, nil
	}

	var venues any
	if p.VenueIDs != nil {
		venues = p.VenueIDs
	}
	var from, to any
	if !p.From.IsZero() {
		from = p.From
	}
	if !p.To.IsZero() {
		to = p.To
	}
	args := []any{p.OrganizationID, venues, p.TableID, string(p.Status),
		p.CustomerName, p.CustomerEmail, p.CustomerPhone, from, to}

	if err := r.db.QueryRow(ctx, `SELECT COUNT(*)`+listWhere, args...).Scan(&res.Total); err != nil {
		return nil, err
	}

	offset := (page.Page - 1) * page.PageSize
	rows, err := r.db.Query(ctx, `
    SELECT o.id, COALESCE(o.table_id::text,''), COALESCE(v.id::text,''),
           o.customer_name, o.customer_email, o.customer_phone, o.room_number,
           o.party_size, o.status, o.payment_status, o.total_amount::text, o.notes,
           o.created_at, o.updated_at, o.completed_at
  `+listWhere+`
    ORDER BY o.created_at DESC LIMIT $10 OFFSET $11
  `, append(args, page.PageSize, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var o Order
		var total string
		if err := rows.Scan(&o.ID, &o.TableID, &o.VenueID, &o.CustomerName,
			&o.CustomerEmail, &o.CustomerPhone, &o.RoomNumber, &o.PartySize,
			&o.Status, &o.PaymentStatus, &total, &o.Notes,
			&o.CreatedAt, &o.UpdatedAt, &o.CompletedAt); err != nil {
			return nil, err
		}
		if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		res.Orders = append(res.Orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	res.HasPrevious = page.Page > 1
	res.HasNext = offset+len(res.Orders) < res.Total
	return res, nil
}

// incrementTotal applies a relative adjustment to the order row. The caller
// must run it inside the same transaction as the item writes it accounts for.
func incrementTotal(ctx context.Context, tx pgx.Tx, orderID string, delta decimal.Decimal) error {
	tag, err := tx.Exec(ctx, `
    UPDATE orders SET total_amount = total_amount + $2, updated_at = NOW()
    WHERE id = $1
  `, orderID, delta.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) AddItems(ctx context.Context, orderID string, items []Item) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	delta := decimal.Zero
	for i := range items {
		if err := insertItem(ctx, tx, &items[i]); err != nil {
			return err
		}
		delta = delta.Add(items[i].TotalPrice)
	}
	if err := incrementTotal(ctx, tx, orderID, delta); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGRepo) UpdateItemQuantity(ctx context.Context, orderID, itemID string, quantity int, notes *string) (*Item, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	it, err := lockItem(ctx, tx, orderID, itemID)
	if err != nil {
		return nil, err
	}

	modSum := decimal.Zero
	for _, m := range it.Modifiers {
		modSum = modSum.Add(m.Price)
	}
	oldTotal := it.TotalPrice
	newTotal := it.UnitPrice.Mul(decimal.NewFromInt(int64(quantity))).Add(modSum)

	if notes != nil {
		it.Notes = *notes
	}
	it.Quantity = quantity
	it.TotalPrice = newTotal
	if _, err := tx.Exec(ctx, `
    UPDATE order_items SET quantity=$3, total_price=$4, notes=$5 WHERE id=$2 AND order_id=$1
  `, orderID, itemID, quantity, newTotal.String(), it.Notes); err != nil {
		return nil, err
	}
	if err := incrementTotal(ctx, tx, orderID, newTotal.Sub(oldTotal)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return it, nil
}

func (r *PGRepo) UpdateItemStatus(ctx context.Context, orderID, itemID string, status ItemStatus) (*Item, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	it, err := lockItem(ctx, tx, orderID, itemID)
	if err != nil {
		return nil, err
	}
	it.Status = status
	if _, err := tx.Exec(ctx, `
    UPDATE order_items SET status=$3 WHERE id=$2 AND order_id=$1
  `, orderID, itemID, string(status)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return it, nil
}

func lockItem(ctx context.Context, tx pgx.Tx, orderID, itemID string) (*Item, error) {
	var it Item
	var unit, total string
	err := tx.QueryRow(ctx, `
    SELECT id, order_id, menu_item_id, quantity, unit_price::text, total_price::text,
           notes, status, created_at
    FROM order_items WHERE id=$2 AND order_id=$1 FOR UPDATE
  `, orderID, itemID).Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Quantity,
		&unit, &total, &it.Notes, &it.Status, &it.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	if it.UnitPrice, err = decimal.NewFromString(unit); err != nil {
		return nil, err
	}
	if it.TotalPrice, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
    SELECT id, order_item_id, modifier_id, price::text
    FROM order_item_modifiers WHERE order_item_id=$1 ORDER BY id
  `, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m ItemModifier
		var price string
		if err := rows.Scan(&m.ID, &m.OrderItemID, &m.ModifierID, &price); err != nil {
			return nil, err
		}
		if m.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		it.Modifiers = append(it.Modifiers, m)
	}
	return &it, rows.Err()
}

func (r *PGRepo) RemoveItems(ctx context.Context, orderID string, itemIDs []string) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
    DELETE FROM order_items WHERE order_id=$1 AND id = ANY($2)
    RETURNING total_price::text
  `, orderID, itemIDs)
	if err != nil {
		return err
	}
	delta := decimal.Zero
	removed := 0
	for rows.Next() {
		var total string
		if err := rows.Scan(&total); err != nil {
			rows.Close()
			return err
		}
		d, err := decimal.NewFromString(total)
		if err != nil {
			rows.Close()
			return err
		}
		delta = delta.Add(d)
		removed++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if removed != len(itemIDs) {
		return ErrItemNotFound
	}
	if err := incrementTotal(ctx, tx, orderID, delta.Neg()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGRepo) AddModifiers(ctx context.Context, orderID, itemID string, mods []ItemModifier) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := lockItem(ctx, tx, orderID, itemID); err != nil {
		return err
	}
	delta := decimal.Zero
	for _, m := range mods {
		if _, err := tx.Exec(ctx, `
      INSERT INTO order_item_modifiers (id, order_item_id, modifier_id, price)
      VALUES ($1,$2,$3,$4)
    `, m.ID, itemID, m.ModifierID, m.Price.String()); err != nil {
			return err
		}
		delta = delta.Add(m.Price)
	}
	if _, err := tx.Exec(ctx, `
    UPDATE order_items SET total_price = total_price + $2 WHERE id=$1
  `, itemID, delta.String()); err != nil {
		return err
	}
	if err := incrementTotal(ctx, tx, orderID, delta); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGRepo) RemoveModifiers(ctx context.Context, orderID, itemID string, modifierIDs []string) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := lockItem(ctx, tx, orderID, itemID); err != nil {
		return err
	}
	rows, err := tx.Query(ctx, `
    DELETE FROM order_item_modifiers WHERE order_item_id=$1 AND modifier_id = ANY($2)
    RETURNING price::text
  `, itemID, modifierIDs)
	if err != nil {
		return err
	}
	delta := decimal.Zero
	removed := 0
	for rows.Next() {
		var price string
		if err := rows.Scan(&price); err != nil {
			rows.Close()
			return err
		}
		d, err := decimal.NewFromString(price)
		if err != nil {
			rows.Close()
			return err
		}
		delta = delta.Add(d)
		removed++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if removed != len(modifierIDs) {
		return ErrItemNotFound
	}
	if _, err := tx.Exec(ctx, `
    UPDATE order_items SET total_price = total_price - $2 WHERE id=$1
  `, itemID, delta.String()); err != nil {
		return err
	}
	if err := incrementTotal(ctx, tx, orderID, delta.Neg()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGRepo) Update(ctx context.Context, orderID string, patch Patch) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
    UPDATE orders SET
      customer_name  = COALESCE($2, customer_name),
      customer_email = COALESCE($3, customer_email),
      customer_phone = COALESCE($4, customer_phone),
      room_number    = COALESCE($5, room_number),
      party_size     = COALESCE($6, party_size),
      notes          = COALESCE($7, notes),
      payment_status = COALESCE($8, payment_status),
      updated_at     = NOW()
    WHERE id = $1
  `, orderID, patch.CustomerName, patch.CustomerEmail, patch.CustomerPhone,
		patch.RoomNumber, patch.PartySize, patch.Notes, paymentStatusArg(patch.PaymentStatus))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func paymentStatusArg(s *PaymentStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func (r *PGRepo) UpdateStatus(ctx context.Context, orderID string, status Status) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
    UPDATE orders
    SET status = $2, updated_at = NOW(),
        completed_at = CASE WHEN $2 = 'completed' THEN NOW() ELSE completed_at END
    WHERE id = $1
  `, orderID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) Delete(ctx context.Context, orderID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// order_items and order_item_modifiers go with the order (ON DELETE CASCADE)
	tag, err := r.db.Exec(ctx, `DELETE FROM orders WHERE id=$1`, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
