package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Item struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type Shortage struct {
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
	Required  int    `json:"required"`
}

// ShortageError reports the first insufficient item, in ascending
// product-id order, of a failed reservation.
type ShortageError struct {
	Shortage
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("out of stock: product %s has %d, need %d",
		e.ProductID, e.Available, e.Required)
}

var (
	ErrBadItem  = errors.New("bad item")
	ErrNotFound = errors.New("product not found")
)

// DB is the slice of pgxpool.Pool the engine needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Engine owns all mutation of stock rows. Reserve is the only write
// path; everything else is reads and operator seeding.
type Engine struct{ DB DB }

func NewEngineWithSchema(ctx context.Context, db DB) (*Engine, error) {
	e := &Engine{DB: db}
	if err := e.InitSchema(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) InitSchema(ctx context.Context) error {
	_, err := e.DB.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS inventory (
			product_id TEXT PRIMARY KEY,
			stock INTEGER NOT NULL CHECK (stock >= 0)
		)`)
	return err
}

// Reserve decrements stock for every item or for none. Duplicate items
// are merged into one quantity, and all row locks are taken in ascending
// product-id order regardless of request order, so two concurrent
// multi-item reservations can never deadlock on each other. The first
// insufficient item (in that order) aborts the whole transaction.
func (e *Engine) Reserve(ctx context.Context, items []Item) error {
	sorted, err := validateAndSort(items)
	if err != nil {
		return err
	}

	tx, err := e.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, it := range sorted {
		// Unknown products come into existence with zero stock.
		if _, err := tx.Exec(ctx, `
			INSERT INTO inventory(product_id, stock) VALUES ($1, 0)
			ON CONFLICT (product_id) DO NOTHING`, it.ProductID); err != nil {
			return err
		}

		var stock int
		if err := tx.QueryRow(ctx,
			`SELECT stock FROM inventory WHERE product_id=$1 FOR UPDATE`,
			it.ProductID).Scan(&stock); err != nil {
			return err
		}
		if stock < it.Qty {
			return &ShortageError{Shortage{ProductID: it.ProductID, Available: stock, Required: it.Qty}}
		}

		if _, err := tx.Exec(ctx,
			`UPDATE inventory SET stock = stock - $2 WHERE product_id=$1`,
			it.ProductID, it.Qty); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// CheckAvailability reports every insufficient item without locking or
// mutating anything. Advisory only: stock may move before Reserve runs.
func (e *Engine) CheckAvailability(ctx context.Context, items []Item) ([]Shortage, error) {
	sorted, err := validateAndSort(items)
	if err != nil {
		return nil, err
	}

	var missing []Shortage
	for _, it := range sorted {
		var stock int
		err := e.DB.QueryRow(ctx,
			`SELECT stock FROM inventory WHERE product_id=$1`, it.ProductID).Scan(&stock)
		if errors.Is(err, pgx.ErrNoRows) {
			stock = 0
		} else if err != nil {
			return nil, err
		}
		if stock < it.Qty {
			missing = append(missing, Shortage{ProductID: it.ProductID, Available: stock, Required: it.Qty})
		}
	}
	return missing, nil
}

// SetStock seeds or overwrites a product's stock level.
func (e *Engine) SetStock(ctx context.Context, productID string, stock int) error {
	if productID == "" || stock < 0 {
		return ErrBadItem
	}
	_, err := e.DB.Exec(ctx, `
		INSERT INTO inventory(product_id, stock) VALUES ($1, $2)
		ON CONFLICT (product_id) DO UPDATE SET stock = EXCLUDED.stock`,
		productID, stock)
	return err
}

// ProductStock is one row of the inventory table.
type ProductStock struct {
	ProductID string `json:"product_id"`
	Stock     int    `json:"stock"`
}

// All lists every stocked product, ordered by product id.
func (e *Engine) All(ctx context.Context) ([]ProductStock, error) {
	rows, err := e.DB.Query(ctx,
		`SELECT product_id, stock FROM inventory ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ProductStock{}
	for rows.Next() {
		var ps ProductStock
		if err := rows.Scan(&ps.ProductID, &ps.Stock); err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// Stock returns the current stock for one product.
func (e *Engine) Stock(ctx context.Context, productID string) (int, error) {
	var stock int
	err := e.DB.QueryRow(ctx,
		`SELECT stock FROM inventory WHERE product_id=$1`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return stock, err
}

// validateAndSort rejects malformed items, merges duplicate product ids
// into one quantity, and orders the result by product id.
func validateAndSort(items []Item) ([]Item, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty item list", ErrBadItem)
	}
	merged := make(map[string]int, len(items))
	for _, it := range items {
		if it.ProductID == "" || it.Qty <= 0 {
			return nil, fmt.Errorf("%w: product=%q qty=%d", ErrBadItem, it.ProductID, it.Qty)
		}
		merged[it.ProductID] += it.Qty
	}
	sorted := make([]Item, 0, len(merged))
	for pid, qty := range merged {
		sorted = append(sorted, Item{ProductID: pid, Qty: qty})
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })
	return sorted, nil
}
