package order

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tably/orderd/internal/apperr"
	"github.com/tably/orderd/internal/catalog"
)

// fakeCatalog serves fixed prices keyed by id.
type fakeCatalog struct {
	items     map[string]string
	modifiers map[string]string
}

func (f *fakeCatalog) GetMenuItem(_ context.Context, id string) (*catalog.MenuItem, error) {
	price, ok := f.items[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "menu item not found")
	}
	return &catalog.MenuItem{ID: id, Price: price}, nil
}

func (f *fakeCatalog) GetModifier(_ context.Context, id string) (*catalog.Modifier, error) {
	price, ok := f.modifiers[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "modifier not found")
	}
	return &catalog.Modifier{ID: id, Price: price}, nil
}

func TestQuote_UnitTimesQuantityPlusModifiers(t *testing.T) {
	p := NewPricer(&fakeCatalog{
		items:     map[string]string{"burger": "5.00"},
		modifiers: map[string]string{"cheese": "0.75", "bacon": "1.25"},
	})

	q, err := p.Quote(context.Background(), "burger", 2, []string{"cheese", "bacon"})
	require.NoError(t, err)
	assert.True(t, q.UnitPrice.Equal(decimal.RequireFromString("5.00")))
	assert.True(t, q.TotalPrice.Equal(decimal.RequireFromString("12.00")))
	require.Len(t, q.ModifierPrices, 2)
	assert.True(t, q.ModifierPrices[0].Equal(decimal.RequireFromString("0.75")))
}

func TestQuote_DecimalExactness(t *testing.T) {
	p := NewPricer(&fakeCatalog{items: map[string]string{"espresso": "3.10"}})

	q, err := p.Quote(context.Background(), "espresso", 3, nil)
	require.NoError(t, err)
	// 3 × 3.10 must be exactly 9.30, not 9.299999…
	assert.True(t, q.TotalPrice.Equal(decimal.RequireFromString("9.30")))
}

func TestQuote_UnknownMenuItem(t *testing.T) {
	p := NewPricer(&fakeCatalog{})

	_, err := p.Quote(context.Background(), "ghost", 1, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestQuote_UnknownModifier(t *testing.T) {
	p := NewPricer(&fakeCatalog{items: map[string]string{"burger": "5.00"}})

	_, err := p.Quote(context.Background(), "burger", 1, []string{"ghost"})
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestQuote_NonPositiveQuantity(t *testing.T) {
	p := NewPricer(&fakeCatalog{items: map[string]string{"burger": "5.00"}})

	_, err := p.Quote(context.Background(), "burger", 0, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsInvalid(err))
}
