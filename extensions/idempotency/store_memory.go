package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/ocelon/openpay"
)

// InMemoryStore provides an in-memory implementation of ChargeStore.
//
// Suitable for single-instance relays where cache state doesn't need to be
// shared across processes. For load-balanced deployments, implement
// ChargeStore with a shared backend instead.
type InMemoryStore struct {
	mu       sync.Mutex
	results  map[string]*openpay.IncomingPayment
	expiry   map[string]time.Time
	inFlight map[string]chan struct{}
	ttl      time.Duration
}

// NewInMemoryStore creates a new in-memory charge store with the specified
// TTL. The TTL determines how long created charges stay cached; it should
// cover the client's retry window.
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		results:  make(map[string]*openpay.IncomingPayment),
		expiry:   make(map[string]time.Time),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
	}
}

// CheckAndMark atomically checks the cache and marks the key as in-flight
// if needed.
func (s *InMemoryStore) CheckAndMark(key string) (ChargeStatus, *openpay.IncomingPayment, chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for cached result first
	if expiry, exists := s.expiry[key]; exists {
		if time.Now().Before(expiry) {
			if result, ok := s.results[key]; ok {
				return StatusCached, result, nil
			}
		}
		// Expired - clean it up
		delete(s.results, key)
		delete(s.expiry, key)
	}

	// Check if in-flight
	if done, exists := s.inFlight[key]; exists {
		return StatusInFlight, nil, done
	}

	// Mark as in-flight
	done := make(chan struct{})
	s.inFlight[key] = done
	return StatusNotFound, nil, done
}

// WaitForResult waits for an in-flight request to complete, respecting
// context cancellation.
func (s *InMemoryStore) WaitForResult(ctx context.Context, key string, done chan struct{}) (*openpay.IncomingPayment, error) {
	select {
	case <-done:
		return s.get(key), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// get retrieves a cached payment if it exists and hasn't expired.
func (s *InMemoryStore) get(key string) *openpay.IncomingPayment {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, exists := s.expiry[key]
	if !exists {
		return nil
	}
	if time.Now().After(expiry) {
		delete(s.results, key)
		delete(s.expiry, key)
		return nil
	}
	return s.results[key]
}

// Complete marks a charge as created, caches the payment, and signals any
// waiting goroutines.
func (s *InMemoryStore) Complete(key string, payment *openpay.IncomingPayment, done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[key] = payment
	s.expiry[key] = time.Now().Add(s.ttl)
	delete(s.inFlight, key)
	close(done)

	s.cleanupExpiredLocked()
}

// Fail removes the in-flight marker without caching a result, allowing the
// charge to be retried.
func (s *InMemoryStore) Fail(key string, done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inFlight, key)
	close(done)
}

// cleanupExpiredLocked removes expired entries. Must be called with lock held.
func (s *InMemoryStore) cleanupExpiredLocked() {
	now := time.Now()
	for key, expiry := range s.expiry {
		if now.After(expiry) {
			delete(s.results, key)
			delete(s.expiry, key)
		}
	}
}

// Ensure InMemoryStore implements ChargeStore
var _ ChargeStore = (*InMemoryStore)(nil)
