package order

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tably/orderd/internal/apperr"
	"github.com/tably/orderd/internal/catalog"
)

// Quote is the priced form of one requested line: a unit-price snapshot, one
// price per requested modifier, and the line total
// (unit × quantity + Σ modifiers). Quotes are computed once at mutation time
// and never re-derived from the live catalog.
type Quote struct {
	UnitPrice      decimal.Decimal
	ModifierPrices []decimal.Decimal
	TotalPrice     decimal.Decimal
}

// Pricer resolves catalog prices into quotes. Side-effect free.
type Pricer struct {
	catalog catalog.Client
}

func NewPricer(c catalog.Client) *Pricer { return &Pricer{catalog: c} }

func (p *Pricer) Quote(ctx context.Context, menuItemID string, quantity int, modifierIDs []string) (*Quote, error) {
	if quantity < 1 {
		return nil, apperr.Invalid("quantity must be at least 1", "quantity")
	}
	item, err := p.catalog.GetMenuItem(ctx, menuItemID)
	if err != nil {
		return nil, err
	}
	unit, err := catalog.ParsePrice(item.Price)
	if err != nil {
		return nil, err
	}
	q := &Quote{
		UnitPrice:  unit,
		TotalPrice: unit.Mul(decimal.NewFromInt(int64(quantity))),
	}
	for _, id := range modifierIDs {
		mod, err := p.catalog.GetModifier(ctx, id)
		if err != nil {
			return nil, err
		}
		price, err := catalog.ParsePrice(mod.Price)
		if err != nil {
			return nil, err
		}
		q.ModifierPrices = append(q.ModifierPrices, price)
		q.TotalPrice = q.TotalPrice.Add(price)
	}
	return q, nil
}

// ModifierPrices resolves just the modifier set, for add-modifier mutations.
func (p *Pricer) ModifierPrices(ctx context.Context, modifierIDs []string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, 0, len(modifierIDs))
	for _, id := range modifierIDs {
		mod, err := p.catalog.GetModifier(ctx, id)
		if err != nil {
			return nil, err
		}
		price, err := catalog.ParsePrice(mod.Price)
		if err != nil {
			return nil, err
		}
		out = append(out, price)
	}
	return out, nil
}
