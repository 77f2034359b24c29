package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nolet7/ecom-micro/internal/inventory"
	"github.com/nolet7/ecom-micro/internal/orders"
)

// Inventory drives the reservation engine over HTTP.
type Inventory struct {
	BaseURL string
	HTTP    *http.Client
}

func NewInventory(baseURL string, timeout time.Duration) *Inventory {
	return &Inventory{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type reserveRequest struct {
	Items []inventory.Item `json:"items"`
}

// Reserve returns nil when every item was decremented, a
// *inventory.ShortageError when the engine reported insufficient stock,
// and a plain error for anything else. Any non-nil error means no stock
// was changed.
func (c *Inventory) Reserve(ctx context.Context, items []orders.ItemQty) error {
	req := reserveRequest{Items: make([]inventory.Item, 0, len(items))}
	for _, it := range items {
		req.Items = append(req.Items, inventory.Item{ProductID: it.ProductID, Qty: it.Qty})
	}
	buf, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/inventory/reserve", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return fmt.Errorf("inventory reserve: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusConflict:
		var sh inventory.Shortage
		if err := json.NewDecoder(resp.Body).Decode(&sh); err != nil {
			return fmt.Errorf("inventory reserve: decode conflict: %w", err)
		}
		return &inventory.ShortageError{Shortage: sh}
	case http.StatusBadRequest:
		return inventory.ErrBadItem
	default:
		return fmt.Errorf("inventory reserve: status %d", resp.StatusCode)
	}
}
