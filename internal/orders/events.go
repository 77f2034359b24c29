package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/nolet7/ecom-micro/internal/kafka"
)

const (
	EventOrderConfirmed = "OrderConfirmed"
	EventOrderCanceled  = "OrderCanceled"
)

const (
	CancelReasonPaymentFailed = "payment_failed"
	CancelReasonOutOfStock    = "out_of_stock"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderConfirmedPayload struct {
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	AmountCents int    `json:"amount_cents"`
}

type OrderCanceledPayload struct {
	OrderID string `json:"order_id"`
	Token   string `json:"idempotency_token"`
	Reason  string `json:"reason"`
}

// Publisher is the async fire-and-forget side of kafkax.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Events emits order lifecycle events. A nil *Events is a valid no-op
// sink; the saga does not depend on the broker being up.
type Events struct {
	Confirmed Publisher
	Canceled  Publisher
	Service   string
}

func (e *Events) PublishConfirmed(o *Order) {
	if e == nil || e.Confirmed == nil {
		return
	}
	e.publish(e.Confirmed, EventOrderConfirmed, o.ID, OrderConfirmedPayload{
		OrderID:     o.ID,
		UserID:      o.UserID,
		AmountCents: o.AmountCents,
	})
}

func (e *Events) PublishCanceled(o *Order, reason string) {
	if e == nil || e.Canceled == nil {
		return
	}
	e.publish(e.Canceled, EventOrderCanceled, o.ID, OrderCanceledPayload{
		OrderID: o.ID,
		Token:   o.Token,
		Reason:  reason,
	})
}

func (e *Events) publish(p Publisher, eventType, orderID string, payload any) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.Service,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
