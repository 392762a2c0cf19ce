package idempotency

import "time"

// config holds the configuration for IdempotentCharger.
type config struct {
	ttl   time.Duration
	store ChargeStore
}

// Option configures an IdempotentCharger.
type Option func(*config)

// WithTTL sets the cache TTL for created charges.
//
// Only applies when using the default InMemoryStore. If WithStore is also
// specified this option is ignored (configure TTL on your store instead).
//
// Default: 10 minutes
func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.ttl = ttl
	}
}

// WithStore sets a custom ChargeStore implementation.
//
// Use this for distributed cache backends like Redis or a database. When
// specified, WithTTL is ignored.
func WithStore(store ChargeStore) Option {
	return func(c *config) {
		c.store = store
	}
}
