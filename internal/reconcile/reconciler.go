// Package reconcile retries refund compensations the saga could not
// complete synchronously. The refund outbox is the work queue; a
// periodic sweep is the safety net, and order.canceled events shorten
// the latency between a failed refund and its retry.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/nolet7/ecom-micro/internal/kafka"
	"github.com/nolet7/ecom-micro/internal/orders"
	"github.com/nolet7/ecom-micro/internal/payments"
	"github.com/nolet7/ecom-micro/internal/redisx"
)

// Refunder is the slice of the payment client the reconciler needs.
type Refunder interface {
	Refund(ctx context.Context, token string) (*payments.Payment, error)
}

// OutboxStore is implemented by orders.RefundOutbox.
type OutboxStore interface {
	Pending(ctx context.Context, limit int) ([]orders.RefundIntent, error)
	PendingForOrder(ctx context.Context, orderID string) ([]orders.RefundIntent, error)
	Resolve(ctx context.Context, token string) error
	RecordFailure(ctx context.Context, token, cause string) error
}

type Reconciler struct {
	Outbox   OutboxStore
	Payments Refunder
	Redis    *redis.Client
	Retry    RetryPolicy
	Log      *zap.Logger

	ServiceName string
	Interval    time.Duration
	BatchSize   int
}

// Run sweeps pending refund intents until the context ends.
func (r *Reconciler) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.Log.Warn("sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep retries every pending refund intent once (with backoff per
// intent) and resolves the ones that no longer need work.
func (r *Reconciler) Sweep(ctx context.Context) error {
	batch := r.BatchSize
	if batch <= 0 {
		batch = 100
	}
	intents, err := r.Outbox.Pending(ctx, batch)
	if err != nil {
		return err
	}
	for _, in := range intents {
		r.process(ctx, in)
	}
	return nil
}

// process drives one intent to resolution. A refund that lands, that
// was already applied, or that has nothing to undo (the charge never
// succeeded) all resolve the intent; only transport-level failures keep
// it pending.
func (r *Reconciler) process(ctx context.Context, in orders.RefundIntent) {
	err := r.Retry.Do(ctx, func() error {
		_, err := r.Payments.Refund(ctx, in.Token)
		if errors.Is(err, payments.ErrNotFound) || errors.Is(err, payments.ErrNotRefundable) {
			return nil
		}
		return err
	})
	if err != nil {
		r.Log.Warn("refund retry failed",
			zap.String("order_id", in.OrderID),
			zap.Int("attempts", in.Attempts+1),
			zap.Error(err))
		if oerr := r.Outbox.RecordFailure(ctx, in.Token, err.Error()); oerr != nil {
			r.Log.Error("record refund failure", zap.Error(oerr))
		}
		return
	}
	if err := r.Outbox.Resolve(ctx, in.Token); err != nil {
		r.Log.Error("resolve refund intent", zap.Error(err))
		return
	}
	r.Log.Info("refund intent resolved", zap.String("order_id", in.OrderID))
}

// HandleOrderCanceled is wired as the order.canceled consumer handler.
// It narrows the sweep to the canceled order so its refund is retried
// without waiting for the next tick.
func (r *Reconciler) HandleOrderCanceled(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderCanceled {
		return nil
	}

	// Dedup on event id: replays from the broker are harmless but noisy.
	dkey := fmt.Sprintf(redisx.KeyDedup, r.ServiceName, env.EventID)
	if exists, _ := redisx.Exists(ctx, r.Redis, dkey); exists {
		return nil
	}
	_ = r.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	payload, err := kafkax.UnwrapPayload[orders.OrderCanceledPayload](env.Payload)
	if err != nil {
		return err
	}

	intents, err := r.Outbox.PendingForOrder(ctx, payload.OrderID)
	if err != nil {
		return err
	}
	for _, in := range intents {
		r.process(ctx, in)
	}
	return nil
}
