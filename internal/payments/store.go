package payments

import (
	"context"
	"database/sql"
	"errors"
)

// Store persists payment decisions in Postgres through database/sql.
// The unique token column is what makes the charge contract idempotent:
// one row per token, ever.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// NewStoreWithSchema initializes the schema then returns the store.
func NewStoreWithSchema(ctx context.Context, db *sql.DB) (*Store, error) {
	s := NewStore(db)
	if err := s.InitSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			amount_cents INTEGER NOT NULL CHECK (amount_cents >= 0),
			status TEXT NOT NULL,
			idempotency_token TEXT UNIQUE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

// FindByToken returns the stored payment for a token, or ErrNotFound.
func (s *Store) FindByToken(ctx context.Context, token string) (*Payment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, amount_cents, status, idempotency_token, created_at
		FROM payments WHERE idempotency_token=$1`, token)
	return scanPayment(row)
}

// Record inserts a decided payment. If the token already has a row, the
// stored row wins and is returned unchanged; the caller's decision is
// discarded.
func (s *Store) Record(ctx context.Context, p Payment) (*Payment, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payments(id, order_id, amount_cents, status, idempotency_token)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_token) DO NOTHING`,
		p.ID, p.OrderID, p.AmountCents, p.Status, p.Token)
	if err != nil {
		return nil, err
	}
	if _, err := res.RowsAffected(); err != nil {
		return nil, err
	}
	return s.FindByToken(ctx, p.Token)
}

// Refund moves a SUCCEEDED payment to REFUNDED. Refunding an already
// REFUNDED payment replays the stored record; refunding a FAILED payment
// is ErrNotRefundable; an unknown token is ErrNotFound.
func (s *Store) Refund(ctx context.Context, token string) (*Payment, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status=$2
		WHERE idempotency_token=$1 AND status=$3`,
		token, StatusRefunded, StatusSucceeded)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected > 0 {
		return s.FindByToken(ctx, token)
	}

	p, err := s.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusRefunded {
		return p, nil
	}
	return nil, ErrNotRefundable
}

func scanPayment(row *sql.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.AmountCents, &p.Status, &p.Token, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
