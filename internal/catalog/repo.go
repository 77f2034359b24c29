package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	PriceCents int       `json:"price_cents"`
	CreatedAt  time.Time `json:"created_at"`
}

var ErrNotFound = errors.New("product not found")

type Repo struct{ DB *pgxpool.Pool }

func NewRepoWithSchema(ctx context.Context, db *pgxpool.Pool) (*Repo, error) {
	r := &Repo{DB: db}
	if err := r.InitSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repo) InitSchema(ctx context.Context) error {
	_, err := r.DB.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			price_cents INTEGER NOT NULL CHECK (price_cents >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func (r *Repo) Create(ctx context.Context, name string, priceCents int) (*Product, error) {
	p := &Product{ID: uuid.NewString(), Name: name, PriceCents: priceCents}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO products(id, name, price_cents) VALUES ($1, $2, $3)
		RETURNING created_at`,
		p.ID, p.Name, p.PriceCents).Scan(&p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, price_cents, created_at FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.PriceCents, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) List(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, name, price_cents, created_at FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
