package payments

import (
	"errors"
	"time"
)

type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusRefunded  Status = "REFUNDED"
)

type Payment struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	AmountCents int       `json:"amount_cents"`
	Status      Status    `json:"status"`
	Token       string    `json:"idempotency_token"`
	CreatedAt   time.Time `json:"created_at"`
}

// ErrNotFound signals no payment exists for the given token.
var ErrNotFound = errors.New("payment not found")

// ErrNotRefundable signals a refund of a payment that never succeeded.
// REFUNDED is reachable only from SUCCEEDED.
var ErrNotRefundable = errors.New("payment not refundable")
