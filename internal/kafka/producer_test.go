package kafka

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

// Every binary shuts down with Close, then cancel, then WaitClosed.
// The loop exercises the race between Close closing the inbox and the
// flush loop waking on the canceled context.
func TestProducerCloseThenCancel(t *testing.T) {
	for i := 0; i < 500; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		p := NewProducer([]string{"localhost:0"}, "orders.test", 8, zap.NewNop())
		p.Start(ctx)
		p.Close()
		cancel()
		p.WaitClosed()
	}
}

func TestProducerCancelThenClose(t *testing.T) {
	for i := 0; i < 500; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		p := NewProducer([]string{"localhost:0"}, "orders.test", 8, zap.NewNop())
		p.Start(ctx)
		cancel()
		p.Close()
		p.WaitClosed()
	}
}

func TestProducerCloseIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewProducer([]string{"localhost:0"}, "orders.test", 8, zap.NewNop())
	p.Start(ctx)
	p.Close()
	p.Close()
	p.WaitClosed()
}
