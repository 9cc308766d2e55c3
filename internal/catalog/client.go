// Package catalog is the read-only client for the menu/catalog service.
// Prices come back as strings (NUMERIC upstream) and are parsed into decimals.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tably/orderd/internal/apperr"
)

type MenuItem struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
}

type Modifier struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
}

// Client is the narrow surface the pricing resolver consumes.
type Client interface {
	GetMenuItem(ctx context.Context, id string) (*MenuItem, error)
	GetModifier(ctx context.Context, id string) (*Modifier, error)
}

type HTTPClient struct {
	HTTP    *http.Client
	BaseURL string
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		HTTP:    &http.Client{Timeout: 5 * time.Second},
		BaseURL: baseURL,
	}
}

func (c *HTTPClient) GetMenuItem(ctx context.Context, id string) (*MenuItem, error) {
	var item MenuItem
	if err := c.getJSON(ctx, fmt.Sprintf("%s/menu-items/%s", c.BaseURL, id), "menu item", &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *HTTPClient) GetModifier(ctx context.Context, id string) (*Modifier, error) {
	var mod Modifier
	if err := c.getJSON(ctx, fmt.Sprintf("%s/modifiers/%s", c.BaseURL, id), "modifier", &mod); err != nil {
		return nil, err
	}
	return &mod, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, url, what string, out any) error {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	res, err := c.HTTP.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "catalog unreachable", err)
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return apperr.Newf(apperr.KindNotFound, "%s not found", what)
	default:
		return apperr.Newf(apperr.KindInternal, "catalog error: %s", res.Status)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.KindInternal, "catalog response decode", err)
	}
	return nil
}

// ParsePrice validates a catalog price string.
func ParsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, apperr.Wrap(apperr.KindInternal, "bad catalog price", err)
	}
	return d, nil
}
