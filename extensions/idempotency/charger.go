package idempotency

import (
	"context"
	"time"

	"github.com/ocelon/openpay"
)

// ChargeStarter is the slice of the orchestrator this package wraps
type ChargeStarter interface {
	StartCharge(ctx context.Context, receiverWallet, amountMinor string) (*openpay.IncomingPayment, error)
}

// IdempotentCharger wraps a ChargeStarter with per-key deduplication.
//
// A request carrying an idempotency key first checks the store: a cached
// charge is returned as-is, an in-flight charge is awaited, and only a
// fresh key actually creates a payment. Requests without a key bypass the
// store entirely, preserving the dedup-free contract of the core clients.
type IdempotentCharger struct {
	inner ChargeStarter
	store ChargeStore
}

// Wrap creates an IdempotentCharger around the given charge starter.
//
// Default configuration is an InMemoryStore with a 10-minute TTL:
//
//	charger := idempotency.Wrap(orchestrator)
//
//	// Or with a custom store
//	charger := idempotency.Wrap(orchestrator,
//	    idempotency.WithStore(myRedisStore),
//	)
func Wrap(inner ChargeStarter, opts ...Option) *IdempotentCharger {
	cfg := &config{
		ttl: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	store := cfg.store
	if store == nil {
		store = NewInMemoryStore(cfg.ttl)
	}

	return &IdempotentCharger{inner: inner, store: store}
}

// StartCharge creates the incoming payment for amountMinor, deduplicated by
// key. An empty key delegates directly with no deduplication.
//
// Failed charges are NOT cached, so a legitimate retry with the same key
// proceeds after a failure.
func (c *IdempotentCharger) StartCharge(ctx context.Context, key, receiverWallet, amountMinor string) (*openpay.IncomingPayment, error) {
	if key == "" {
		return c.inner.StartCharge(ctx, receiverWallet, amountMinor)
	}

	status, result, done := c.store.CheckAndMark(key)

	switch status {
	case StatusCached:
		return result, nil

	case StatusInFlight:
		result, err := c.store.WaitForResult(ctx, key, done)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
		// In-flight request failed; retry for a fresh in-flight slot.
		return c.StartCharge(ctx, key, receiverWallet, amountMinor)

	case StatusNotFound:
		// This request owns the in-flight slot, proceed.
	}

	payment, err := c.inner.StartCharge(ctx, receiverWallet, amountMinor)
	if err != nil {
		c.store.Fail(key, done)
		return nil, err
	}

	c.store.Complete(key, payment, done)
	return payment, nil
}

// Inner returns the wrapped charge starter for direct access.
func (c *IdempotentCharger) Inner() ChargeStarter {
	return c.inner
}
