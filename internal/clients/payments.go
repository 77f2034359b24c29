package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nolet7/ecom-micro/internal/payments"
)

// Payments drives the payment processor's charge/refund contract.
type Payments struct {
	BaseURL string
	HTTP    *http.Client
}

func NewPayments(baseURL string, timeout time.Duration) *Payments {
	return &Payments{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type chargeRequest struct {
	OrderID     string `json:"order_id"`
	AmountCents int    `json:"amount_cents"`
	Token       string `json:"idempotency_token"`
}

type refundRequest struct {
	Token string `json:"idempotency_token"`
}

func (c *Payments) Charge(ctx context.Context, orderID string, amountCents int, token string) (*payments.Payment, error) {
	return c.post(ctx, "/payments", chargeRequest{OrderID: orderID, AmountCents: amountCents, Token: token})
}

func (c *Payments) Refund(ctx context.Context, token string) (*payments.Payment, error) {
	return c.post(ctx, "/refunds", refundRequest{Token: token})
}

func (c *Payments) post(ctx context.Context, path string, body any) (*payments.Payment, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payments %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var p payments.Payment
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			return nil, fmt.Errorf("payments %s: decode: %w", path, err)
		}
		return &p, nil
	case http.StatusNotFound:
		return nil, payments.ErrNotFound
	case http.StatusConflict:
		return nil, payments.ErrNotRefundable
	default:
		return nil, fmt.Errorf("payments %s: status %d", path, resp.StatusCode)
	}
}
