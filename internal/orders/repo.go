package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

func NewRepoWithSchema(ctx context.Context, db *pgxpool.Pool) (*Repo, error) {
	r := &Repo{DB: db}
	if err := r.InitSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repo) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			amount_cents INTEGER NOT NULL CHECK (amount_cents >= 0),
			status TEXT NOT NULL,
			idempotency_token TEXT UNIQUE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS order_lines (
			order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id TEXT NOT NULL,
			qty INTEGER NOT NULL CHECK (qty > 0),
			price_cents INTEGER NOT NULL CHECK (price_cents >= 0)
		)`,
	}
	for _, stmt := range statements {
		if _, err := r.DB.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// FindByToken returns the order previously created under token, or
// ErrNotFound. Used as the saga's replay check.
func (r *Repo) FindByToken(ctx context.Context, token string) (*Order, error) {
	return r.fetch(ctx, `SELECT id, user_id, amount_cents, status, idempotency_token, created_at
	                     FROM orders WHERE idempotency_token=$1`, token)
}

// Get returns an order with its lines, or ErrNotFound.
func (r *Repo) Get(ctx context.Context, orderID string) (*Order, error) {
	return r.fetch(ctx, `SELECT id, user_id, amount_cents, status, idempotency_token, created_at
	                     FROM orders WHERE id=$1`, orderID)
}

func (r *Repo) fetch(ctx context.Context, query, arg string) (*Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, query, arg).
		Scan(&o.ID, &o.UserID, &o.AmountCents, &o.Status, &o.Token, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `SELECT product_id, qty, price_cents FROM order_lines WHERE order_id=$1`, o.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ProductID, &l.Qty, &l.PriceCents); err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, l)
	}
	return &o, rows.Err()
}

// CreatePending persists a PENDING order and its lines as one unit.
// The unique token column arbitrates concurrent duplicate submissions:
// the loser of the insert race gets the winner's row back (existed=true)
// and persists nothing.
func (r *Repo) CreatePending(ctx context.Context, userID, token string, lines []Line) (*Order, bool, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o := &Order{
		ID:          uuid.NewString(),
		UserID:      userID,
		AmountCents: AmountCents(lines),
		Status:      StatusPending,
		Token:       token,
		Lines:       lines,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, user_id, amount_cents, status, idempotency_token)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_token) DO NOTHING
		RETURNING created_at`,
		o.ID, o.UserID, o.AmountCents, o.Status, o.Token,
	).Scan(&o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Another call with the same token won the race.
		existing, ferr := r.FindByToken(ctx, token)
		if ferr != nil {
			return nil, false, ferr
		}
		return existing, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	for _, l := range lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_lines(order_id, product_id, qty, price_cents)
			VALUES ($1, $2, $3, $4)`,
			o.ID, l.ProductID, l.Qty, l.PriceCents,
		); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return o, false, nil
}

// SetStatus transitions a PENDING order to a terminal status. Once an
// order is terminal no further transition is applied; setting the same
// terminal status twice is a no-op.
func (r *Repo) SetStatus(ctx context.Context, orderID string, to Status) error {
	if !CanTransition(StatusPending, to) {
		return fmt.Errorf("invalid transition to %s", to)
	}
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET status=$2 WHERE id=$1 AND status=$3`,
		orderID, to, StatusPending)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var current Status
	err = r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, orderID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if current == to {
		return nil
	}
	return fmt.Errorf("order %s already %s, cannot set %s", orderID, current, to)
}
