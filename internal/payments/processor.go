package payments

import (
	"context"
	"errors"
	"math/rand"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DecisionPolicy decides the outcome of a fresh charge. It is external
// to this module's contract: any function returning SUCCEEDED or FAILED
// will do.
type DecisionPolicy func() Status

func AlwaysSucceed() Status { return StatusSucceeded }
func AlwaysFail() Status    { return StatusFailed }

// RandomApprove succeeds with probability rate.
func RandomApprove(rate float64) DecisionPolicy {
	return func() Status {
		if rand.Float64() < rate {
			return StatusSucceeded
		}
		return StatusFailed
	}
}

// PolicyFromMode maps the PAYMENTS_MODE setting to a policy.
func PolicyFromMode(mode string) DecisionPolicy {
	switch mode {
	case "always_success":
		return AlwaysSucceed
	case "always_fail":
		return AlwaysFail
	default:
		return RandomApprove(0.8)
	}
}

// Processor applies the decision policy at most once per token and
// serves replays from the store.
type Processor struct {
	Store  *Store
	Decide DecisionPolicy
	Log    *zap.Logger
}

// Charge returns the stored payment for token if one exists; otherwise
// it runs the decision policy once and persists the outcome. Sequential
// replays never reach the policy again.
func (p *Processor) Charge(ctx context.Context, orderID string, amountCents int, token string) (*Payment, error) {
	if existing, err := p.Store.FindByToken(ctx, token); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	status := p.Decide()
	p.Log.Info("charge decided",
		zap.String("order_id", orderID),
		zap.Int("amount_cents", amountCents),
		zap.String("status", string(status)))

	return p.Store.Record(ctx, Payment{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		AmountCents: amountCents,
		Status:      status,
		Token:       token,
	})
}

func (p *Processor) Refund(ctx context.Context, token string) (*Payment, error) {
	return p.Store.Refund(ctx, token)
}
