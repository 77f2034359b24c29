package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nolet7/ecom-micro/internal/payments"
)

// PricingClient resolves the current unit price of a product. Pure read.
type PricingClient interface {
	UnitPrice(ctx context.Context, productID string) (int, error)
}

// PaymentClient charges and refunds against the payment processor, both
// keyed by the order's idempotency token.
type PaymentClient interface {
	Charge(ctx context.Context, orderID string, amountCents int, token string) (*payments.Payment, error)
	Refund(ctx context.Context, token string) (*payments.Payment, error)
}

// ReservationClient atomically reserves stock for a set of items.
// A nil return means every item was decremented; any error means no
// stock changed at all.
type ReservationClient interface {
	Reserve(ctx context.Context, items []ItemQty) error
}

// Store is the slice of Repo the saga drives.
type Store interface {
	FindByToken(ctx context.Context, token string) (*Order, error)
	CreatePending(ctx context.Context, userID, token string, lines []Line) (*Order, bool, error)
	SetStatus(ctx context.Context, orderID string, to Status) error
}

// CompensationLog records refund intents durably (see RefundOutbox).
type CompensationLog interface {
	Enqueue(ctx context.Context, orderID, token string) error
	Resolve(ctx context.Context, token string) error
	RecordFailure(ctx context.Context, token, cause string) error
}

// Saga sequences price lookup, order persistence, charge and stock
// reservation, compensating with a refund when reservation fails after
// a successful charge. Safe to retry verbatim: the idempotency token
// pins every side effect.
type Saga struct {
	Store     Store
	Pricing   PricingClient
	Payments  PaymentClient
	Inventory ReservationClient
	Outbox    CompensationLog
	Events    *Events
	Log       *zap.Logger

	// NewToken generates a token when the caller supplies none.
	NewToken func() string
}

func NewSaga(store Store, pricing PricingClient, pay PaymentClient, inv ReservationClient, outbox CompensationLog, events *Events, log *zap.Logger) *Saga {
	return &Saga{
		Store:     store,
		Pricing:   pricing,
		Payments:  pay,
		Inventory: inv,
		Outbox:    outbox,
		Events:    events,
		Log:       log,
		NewToken:  uuid.NewString,
	}
}

// PlaceOrder runs the whole saga and returns the order in a terminal
// state. Errors after the order row exists carry the order id so the
// caller can inspect the stored outcome.
func (s *Saga) PlaceOrder(ctx context.Context, userID string, items []ItemQty, token string) (*Order, error) {
	if err := validateRequest(userID, items); err != nil {
		return nil, err
	}

	// Step 1: replay check. A caller-supplied token may already have an
	// order; a freshly generated one cannot.
	if token == "" {
		token = s.NewToken()
	} else {
		existing, err := s.Store.FindByToken(ctx, token)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	// Step 2: price snapshot. Nothing is persisted yet, so failures here
	// need no compensation.
	lines := make([]Line, 0, len(items))
	for _, it := range items {
		price, err := s.Pricing.UnitPrice(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, Line{ProductID: it.ProductID, Qty: it.Qty, PriceCents: price})
	}

	// Step 3: commit point. Order and lines land atomically; from here
	// on every failure must leave the order in a terminal state.
	order, existed, err := s.Store.CreatePending(ctx, userID, token, lines)
	if err != nil {
		return nil, err
	}
	if existed {
		return order, nil
	}

	// Step 4: charge.
	payment, err := s.Payments.Charge(ctx, order.ID, order.AmountCents, token)
	if err != nil {
		// No usable result. Treated as a declined charge, never as
		// success; a charge that did land is caught by the refund
		// intent recorded here.
		s.Log.Warn("charge call failed", zap.String("order_id", order.ID), zap.Error(err))
		s.recordRefundIntent(ctx, order)
		return nil, s.cancel(ctx, order, CancelReasonPaymentFailed)
	}
	if payment.Status != payments.StatusSucceeded {
		return nil, s.cancel(ctx, order, CancelReasonPaymentFailed)
	}

	// Step 5: reservation, with refund compensation on any non-success.
	if err := s.Inventory.Reserve(ctx, items); err != nil {
		s.Log.Info("reservation failed, compensating",
			zap.String("order_id", order.ID), zap.Error(err))
		s.compensate(ctx, order)
		return nil, s.cancel(ctx, order, CancelReasonOutOfStock)
	}

	// Step 6: confirm.
	if err := s.Store.SetStatus(ctx, order.ID, StatusConfirmed); err != nil {
		return nil, fmt.Errorf("confirm order %s: %w", order.ID, err)
	}
	order.Status = StatusConfirmed
	s.Events.PublishConfirmed(order)
	return order, nil
}

// compensate records the refund intent durably, then makes one
// best-effort refund attempt. A failed attempt is logged and left to
// the reconciler; it never masks the caller-facing error.
func (s *Saga) compensate(ctx context.Context, order *Order) {
	s.recordRefundIntent(ctx, order)
	if _, err := s.Payments.Refund(ctx, order.Token); err != nil {
		s.Log.Warn("refund attempt failed, left to reconciler",
			zap.String("order_id", order.ID), zap.Error(err))
		if oerr := s.Outbox.RecordFailure(ctx, order.Token, err.Error()); oerr != nil {
			s.Log.Error("record refund failure", zap.String("order_id", order.ID), zap.Error(oerr))
		}
		return
	}
	if err := s.Outbox.Resolve(ctx, order.Token); err != nil {
		s.Log.Error("resolve refund intent", zap.String("order_id", order.ID), zap.Error(err))
	}
}

func (s *Saga) recordRefundIntent(ctx context.Context, order *Order) {
	if err := s.Outbox.Enqueue(ctx, order.ID, order.Token); err != nil {
		s.Log.Error("enqueue refund intent", zap.String("order_id", order.ID), zap.Error(err))
	}
}

// cancel moves the order to CANCELED and returns the business error the
// caller should see.
func (s *Saga) cancel(ctx context.Context, order *Order, reason string) error {
	if err := s.Store.SetStatus(ctx, order.ID, StatusCanceled); err != nil {
		return fmt.Errorf("cancel order %s: %w", order.ID, err)
	}
	order.Status = StatusCanceled
	s.Events.PublishCanceled(order, reason)
	if reason == CancelReasonPaymentFailed {
		return &ErrPaymentDeclined{OrderID: order.ID}
	}
	return &ErrOutOfStock{OrderID: order.ID}
}

func validateRequest(userID string, items []ItemQty) error {
	if userID == "" {
		return fmt.Errorf("%w: user_id required", ErrBadRequest)
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: items required", ErrBadRequest)
	}
	for _, it := range items {
		if it.ProductID == "" || it.Qty <= 0 {
			return fmt.Errorf("%w: product=%q qty=%d", ErrBadRequest, it.ProductID, it.Qty)
		}
	}
	return nil
}
