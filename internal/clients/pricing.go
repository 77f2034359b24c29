// Package clients holds the typed HTTP clients the order saga uses to
// talk to its collaborators. Every call carries the request context and
// a bounded client timeout; a timeout is always a failure, never an
// assumed success.
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nolet7/ecom-micro/internal/orders"
)

// Pricing resolves unit prices from the catalog service.
type Pricing struct {
	BaseURL string
	HTTP    *http.Client
}

func NewPricing(baseURL string, timeout time.Duration) *Pricing {
	return &Pricing{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *Pricing) UnitPrice(ctx context.Context, productID string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.BaseURL+"/products/"+productID, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", orders.ErrPricingUnavailable, err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", orders.ErrPricingUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body struct {
			PriceCents int `json:"price_cents"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return 0, fmt.Errorf("%w: decode: %v", orders.ErrPricingUnavailable, err)
		}
		return body.PriceCents, nil
	case http.StatusNotFound:
		return 0, &orders.ErrProductUnknown{ProductID: productID}
	default:
		return 0, fmt.Errorf("%w: catalog returned %d", orders.ErrPricingUnavailable, resp.StatusCode)
	}
}
