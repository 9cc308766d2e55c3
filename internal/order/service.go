package order

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tably/orderd/internal/apperr"
	"github.com/tably/orderd/internal/directory"
	"github.com/tably/orderd/internal/realtime"
)

// Publisher is the outbound side of the event bus. Publish must not block;
// delivery is best-effort and never affects the outcome of a mutation.
type Publisher interface {
	Publish(topics []string, ev realtime.Event)
}

// Service is the order facade: scope checks before reads, pricing + storage
// for mutations, event fan-out after commit.
type Service struct {
	repo   Repository
	pricer *Pricer
	dir    directory.Repository
	pub    Publisher
}

func NewService(repo Repository, pricer *Pricer, dir directory.Repository, pub Publisher) *Service {
	return &Service{repo: repo, pricer: pricer, dir: dir, pub: pub}
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, "order not found", err)
	case errors.Is(err, ErrItemNotFound):
		return apperr.Wrap(apperr.KindNotFound, "order item not found", err)
	default:
		return apperr.Wrap(apperr.KindInternal, "storage failure", err)
	}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, apperr.Invalid("order must contain at least one item", "items")
	}
	if req.TableID == "" && req.RoomNumber == "" {
		return nil, apperr.Invalid("order needs a table or a room number", "table_id", "room_number")
	}
	if req.TableID == "" && req.VenueID == "" {
		return nil, apperr.Invalid("order without a table needs a venue", "venue_id")
	}

	venueID := req.VenueID
	if req.TableID != "" {
		table, err := s.dir.GetTable(ctx, req.TableID)
		if err != nil {
			return nil, apperr.New(apperr.KindNotFound, "table not found")
		}
		if req.VenueID != "" && table.VenueID != req.VenueID {
			return nil, apperr.New(apperr.KindNotFound, "table does not belong to venue")
		}
		venueID = table.VenueID
	}
	venue, err := s.dir.GetVenue(ctx, venueID)
	if err != nil {
		return nil, apperr.New(apperr.KindNotFound, "venue not found")
	}

	o := &Order{
		ID:            uuid.NewString(),
		TableID:       req.TableID,
		VenueID:       req.VenueID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		RoomNumber:    req.RoomNumber,
		PartySize:     req.PartySize,
		Status:        StatusPending,
		PaymentStatus: PaymentUnpaid,
		TotalAmount:   decimal.Zero,
		Notes:         req.Notes,
	}
	for _, line := range req.Items {
		item, err := s.priceLine(ctx, o.ID, line)
		if err != nil {
			return nil, err
		}
		o.Items = append(o.Items, *item)
		o.TotalAmount = o.TotalAmount.Add(item.TotalPrice)
	}

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, mapRepoErr(err)
	}

	// the customer does not hold the order id before creation returns, so
	// new-order events skip the order topic
	s.pub.Publish(
		[]string{realtime.VenueTopic(venue.ID), realtime.OrganizationTopic(venue.OrganizationID)},
		realtime.Event{
			Type:           realtime.EventOrderCreated,
			OrderID:        o.ID,
			Status:         string(o.Status),
			TableID:        o.TableID,
			VenueID:        venue.ID,
			OrganizationID: venue.OrganizationID,
			Message:        "order created",
		})
	return s.get(ctx, o.ID)
}

func (s *Service) priceLine(ctx context.Context, orderID string, line CreateItem) (*Item, error) {
	if line.MenuItemID == "" {
		return nil, apperr.Invalid("menu item id is required", "menu_item_id")
	}
	q, err := s.pricer.Quote(ctx, line.MenuItemID, line.Quantity, line.ModifierIDs)
	if err != nil {
		return nil, err
	}
	item := &Item{
		ID:         uuid.NewString(),
		OrderID:    orderID,
		MenuItemID: line.MenuItemID,
		Quantity:   line.Quantity,
		UnitPrice:  q.UnitPrice,
		TotalPrice: q.TotalPrice,
		Notes:      line.Notes,
		Status:     ItemPending,
	}
	for i, modID := range line.ModifierIDs {
		item.Modifiers = append(item.Modifiers, ItemModifier{
			ID:          uuid.NewString(),
			OrderItemID: item.ID,
			ModifierID:  modID,
			Price:       q.ModifierPrices[i],
		})
	}
	return item, nil
}

// List returns only the orders the membership may see; the caller's filter
// narrows but never widens that set.
func (s *Service) List(ctx context.Context, m *directory.Membership, f Filter, page Page) (*ListResult, error) {
	pred, err := ResolveScope(m, f)
	if err != nil {
		return nil, err
	}
	res, err := s.repo.List(ctx, pred, page)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return res, nil
}

func (s *Service) Get(ctx context.Context, m *directory.Membership, id string) (*Order, error) {
	o, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	venueID, orgID, err := s.resolveAudience(ctx, o)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "order venue unresolved", err)
	}
	if !AllowsVenue(m, orgID, venueID) {
		return nil, apperr.New(apperr.KindForbidden, "order outside caller scope")
	}
	return o, nil
}

func (s *Service) get(ctx context.Context, id string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return o, nil
}

func (s *Service) Update(ctx context.Context, id string, patch Patch) (*Order, error) {
	if patch.PaymentStatus != nil && !patch.PaymentStatus.Valid() {
		return nil, apperr.Invalid("unknown payment status", "payment_status")
	}
	if patch.PartySize != nil && *patch.PartySize < 1 {
		return nil, apperr.Invalid("party size must be positive", "party_size")
	}
	if err := s.repo.Update(ctx, id, patch); err != nil {
		return nil, mapRepoErr(err)
	}
	o, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publishOrderEvent(ctx, o, realtime.EventOrderUpdated, "order updated")
	return o, nil
}

func (s *Service) AddItems(ctx context.Context, orderID string, lines []CreateItem) (*Order, error) {
	if len(lines) == 0 {
		return nil, apperr.Invalid("no items to add", "items")
	}
	if _, err := s.get(ctx, orderID); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(lines))
	for _, line := range lines {
		item, err := s.priceLine(ctx, orderID, line)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := s.repo.AddItems(ctx, orderID, items); err != nil {
		return nil, mapRepoErr(err)
	}
	o, err := s.get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.publishOrderEvent(ctx, o, realtime.EventOrderItemsAdded, "items added")
	return o, nil
}

func (s *Service) UpdateItem(ctx context.Context, orderID, itemID string, patch ItemPatch) (*Item, error) {
	if patch.Quantity == nil && patch.Notes == nil && patch.Status == nil {
		return nil, apperr.Invalid("empty item patch", "quantity", "notes", "status")
	}
	var it *Item
	var err error
	if patch.Quantity != nil {
		if *patch.Quantity < 1 {
			return nil, apperr.Invalid("quantity must be at least 1", "quantity")
		}
		it, err = s.repo.UpdateItemQuantity(ctx, orderID, itemID, *patch.Quantity, patch.Notes)
		if err != nil {
			return nil, mapRepoErr(err)
		}
	} else if patch.Notes != nil {
		// notes-only change reuses the quantity path with the current quantity
		cur, err := s.lookupItem(ctx, orderID, itemID)
		if err != nil {
			return nil, err
		}
		it, err = s.repo.UpdateItemQuantity(ctx, orderID, itemID, cur.Quantity, patch.Notes)
		if err != nil {
			return nil, mapRepoErr(err)
		}
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, apperr.Invalid("unknown item status", "status")
		}
		it, err = s.repo.UpdateItemStatus(ctx, orderID, itemID, *patch.Status)
		if err != nil {
			return nil, mapRepoErr(err)
		}
	}
	s.publishItemEvent(ctx, orderID, it)
	return it, nil
}

func (s *Service) lookupItem(ctx context.Context, orderID, itemID string) (*Item, error) {
	o, err := s.get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i], nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "order item not found")
}

func (s *Service) RemoveItems(ctx context.Context, orderID string, itemIDs []string) (*Order, error) {
	if len(itemIDs) == 0 {
		return nil, apperr.Invalid("no items to remove", "item_ids")
	}
	if err := s.repo.RemoveItems(ctx, orderID, itemIDs); err != nil {
		return nil, mapRepoErr(err)
	}
	o, err := s.get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.publishOrderEvent(ctx, o, realtime.EventOrderItemsRemoved, "items removed")
	return o, nil
}

func (s *Service) AddModifiers(ctx context.Context, orderID, itemID string, modifierIDs []string) (*Item, error) {
	if len(modifierIDs) == 0 {
		return nil, apperr.Invalid("no modifiers to add", "modifier_ids")
	}
	// resolve prices before touching storage: an unknown modifier leaves the
	// order untouched
	prices, err := s.pricer.ModifierPrices(ctx, modifierIDs)
	if err != nil {
		return nil, err
	}
	mods := make([]ItemModifier, 0, len(modifierIDs))
	for i, id := range modifierIDs {
		mods = append(mods, ItemModifier{
			ID:          uuid.NewString(),
			OrderItemID: itemID,
			ModifierID:  id,
			Price:       prices[i],
		})
	}
	if err := s.repo.AddModifiers(ctx, orderID, itemID, mods); err != nil {
		return nil, mapRepoErr(err)
	}
	it, err := s.lookupItem(ctx, orderID, itemID)
	if err != nil {
		return nil, err
	}
	s.publishItemEvent(ctx, orderID, it)
	return it, nil
}

func (s *Service) RemoveModifiers(ctx context.Context, orderID, itemID string, modifierIDs []string) (*Item, error) {
	if len(modifierIDs) == 0 {
		return nil, apperr.Invalid("no modifiers to remove", "modifier_ids")
	}
	if err := s.repo.RemoveModifiers(ctx, orderID, itemID, modifierIDs); err != nil {
		return nil, mapRepoErr(err)
	}
	it, err := s.lookupItem(ctx, orderID, itemID)
	if err != nil {
		return nil, err
	}
	s.publishItemEvent(ctx, orderID, it)
	return it, nil
}

// UpdateStatus accepts any declared status; transition legality is not
// validated. Reaching completed stamps the completion time.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status Status) (*Order, error) {
	if !status.Valid() {
		return nil, apperr.Invalid("unknown order status", "status")
	}
	if err := s.repo.UpdateStatus(ctx, orderID, status); err != nil {
		return nil, mapRepoErr(err)
	}
	o, err := s.get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.publishOrderEvent(ctx, o, realtime.EventOrderStatus, "order status changed")
	return o, nil
}

func (s *Service) Delete(ctx context.Context, orderID string) error {
	// capture the audience before the rows go away
	o, err := s.get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, orderID); err != nil {
		return mapRepoErr(err)
	}
	s.publishOrderEvent(ctx, o, realtime.EventOrderDeleted, "order deleted")
	return nil
}

// resolveAudience derives the venue and organization of an order through its
// table relation, or directly from the venue reference.
func (s *Service) resolveAudience(ctx context.Context, o *Order) (venueID, orgID string, err error) {
	venueID = o.VenueID
	if venueID == "" && o.TableID != "" {
		table, err := s.dir.GetTable(ctx, o.TableID)
		if err != nil {
			return "", "", err
		}
		venueID = table.VenueID
	}
	if venueID == "" {
		return "", "", errors.New("order has neither venue nor table")
	}
	venue, err := s.dir.GetVenue(ctx, venueID)
	if err != nil {
		return "", "", err
	}
	return venue.ID, venue.OrganizationID, nil
}

// publishOrderEvent fans one lifecycle event out to everything watching the
// order: the order topic, the table topic when a table is set, and the
// venue/organization topics. A failed audience resolution only skips the
// broadcast; the committed mutation stands.
func (s *Service) publishOrderEvent(ctx context.Context, o *Order, typ, msg string) {
	venueID, orgID, err := s.resolveAudience(ctx, o)
	if err != nil {
		log.Printf("[orders] WARN skipping broadcast for order=%s: %v", o.ID, err)
		return
	}
	topics := []string{realtime.OrderTopic(o.ID)}
	if o.TableID != "" {
		topics = append(topics, realtime.TableTopic(o.TableID))
	}
	topics = append(topics, realtime.VenueTopic(venueID), realtime.OrganizationTopic(orgID))
	s.pub.Publish(topics, realtime.Event{
		Type:           typ,
		OrderID:        o.ID,
		Status:         string(o.Status),
		TableID:        o.TableID,
		VenueID:        venueID,
		OrganizationID: orgID,
		Message:        msg,
	})
}

func (s *Service) publishItemEvent(ctx context.Context, orderID string, it *Item) {
	if it == nil {
		return
	}
	o, err := s.get(ctx, orderID)
	if err != nil {
		log.Printf("[orders] WARN skipping broadcast for order=%s: %v", orderID, err)
		return
	}
	venueID, orgID, err := s.resolveAudience(ctx, o)
	if err != nil {
		log.Printf("[orders] WARN skipping broadcast for order=%s: %v", orderID, err)
		return
	}
	topics := []string{realtime.OrderTopic(orderID)}
	if o.TableID != "" {
		topics = append(topics, realtime.TableTopic(o.TableID))
	}
	topics = append(topics, realtime.VenueTopic(venueID), realtime.OrganizationTopic(orgID))
	s.pub.Publish(topics, realtime.Event{
		Type:        realtime.EventOrderItemUpdated,
		OrderID:     orderID,
		OrderItemID: it.ID,
		Status:      string(it.Status),
		Timestamp:   time.Now().UTC(),
		Message:     "order item updated",
	})
}
