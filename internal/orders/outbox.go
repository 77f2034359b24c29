package orders

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RefundOutbox records refund intents durably before the refund call is
// attempted, so a compensation lost to a transient payment outage can be
// retried out of band instead of silently dropped.
type RefundOutbox struct{ DB *pgxpool.Pool }

type RefundIntent struct {
	Token     string
	OrderID   string
	Attempts  int
	LastError string
	CreatedAt time.Time
}

func NewRefundOutboxWithSchema(ctx context.Context, db *pgxpool.Pool) (*RefundOutbox, error) {
	ob := &RefundOutbox{DB: db}
	if err := ob.InitSchema(ctx); err != nil {
		return nil, err
	}
	return ob, nil
}

func (ob *RefundOutbox) InitSchema(ctx context.Context) error {
	_, err := ob.DB.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS refund_outbox (
			idempotency_token TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

// Enqueue stores the intent; replaying the same token is a no-op.
func (ob *RefundOutbox) Enqueue(ctx context.Context, orderID, token string) error {
	_, err := ob.DB.Exec(ctx, `
		INSERT INTO refund_outbox(idempotency_token, order_id)
		VALUES ($1, $2)
		ON CONFLICT (idempotency_token) DO NOTHING`,
		token, orderID)
	return err
}

func (ob *RefundOutbox) Resolve(ctx context.Context, token string) error {
	_, err := ob.DB.Exec(ctx, `
		UPDATE refund_outbox SET status='resolved', updated_at=NOW()
		WHERE idempotency_token=$1`, token)
	return err
}

func (ob *RefundOutbox) RecordFailure(ctx context.Context, token, cause string) error {
	_, err := ob.DB.Exec(ctx, `
		UPDATE refund_outbox
		SET attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE idempotency_token = $1`, token, cause)
	return err
}

// Pending lists unresolved intents, oldest first.
func (ob *RefundOutbox) Pending(ctx context.Context, limit int) ([]RefundIntent, error) {
	rows, err := ob.DB.Query(ctx, `
		SELECT idempotency_token, order_id, attempts, COALESCE(last_error, ''), created_at
		FROM refund_outbox
		WHERE status='pending'
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RefundIntent
	for rows.Next() {
		var in RefundIntent
		if err := rows.Scan(&in.Token, &in.OrderID, &in.Attempts, &in.LastError, &in.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// PendingForOrder narrows the sweep when an order.canceled event names
// the order directly.
func (ob *RefundOutbox) PendingForOrder(ctx context.Context, orderID string) ([]RefundIntent, error) {
	rows, err := ob.DB.Query(ctx, `
		SELECT idempotency_token, order_id, attempts, COALESCE(last_error, ''), created_at
		FROM refund_outbox
		WHERE status='pending' AND order_id=$1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RefundIntent
	for rows.Next() {
		var in RefundIntent
		if err := rows.Scan(&in.Token, &in.OrderID, &in.Attempts, &in.LastError, &in.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
