package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("order not found")
	ErrBadRequest = errors.New("bad request")
)

// ErrPricingUnavailable wraps transport faults talking to the catalog.
// The saga aborts before persisting anything, so the caller may retry
// the same token verbatim.
var ErrPricingUnavailable = errors.New("pricing unavailable")

// ErrProductUnknown means the catalog has no such product; a client-side
// mistake, not an outage.
type ErrProductUnknown struct {
	ProductID string
}

func (e *ErrProductUnknown) Error() string {
	return fmt.Sprintf("unknown product %s", e.ProductID)
}

// ErrPaymentDeclined carries the id of the (now CANCELED) order whose
// charge was declined. No refund is owed: the charge never succeeded.
type ErrPaymentDeclined struct {
	OrderID string
}

func (e *ErrPaymentDeclined) Error() string {
	return fmt.Sprintf("payment declined for order %s", e.OrderID)
}

// ErrOutOfStock carries the id of the (now CANCELED) order whose
// reservation failed after a successful charge. A refund has been
// attempted; the outbox guarantees it is eventually applied.
type ErrOutOfStock struct {
	OrderID string
}

func (e *ErrOutOfStock) Error() string {
	return fmt.Sprintf("out of stock for order %s", e.OrderID)
}
