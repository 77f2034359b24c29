package orders

import "time"

// ItemQty is the client-supplied request line: which product, how many.
type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type Order struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	AmountCents int       `json:"amount_cents"`
	Status      Status    `json:"status"`
	Token       string    `json:"idempotency_token"`
	CreatedAt   time.Time `json:"created_at"`
	Lines       []Line    `json:"items,omitempty"`
}

// Line snapshots the unit price at order time; later catalog changes
// never touch it.
type Line struct {
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
}

// AmountCents is the order total over a set of priced lines.
func AmountCents(lines []Line) int {
	total := 0
	for _, l := range lines {
		total += l.PriceCents * l.Qty
	}
	return total
}
