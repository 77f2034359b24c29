package redisx

import "time"

const (
	// Fast-path idempotency for order creation: idem:order:create:{token} -> order_id.
	// The orders table is the source of truth; this only short-circuits replays.
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Cached order status: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Event dedup during consumption: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
