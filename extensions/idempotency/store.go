package idempotency

import (
	"context"

	"github.com/ocelon/openpay"
)

// ChargeStatus represents the result of checking the store.
type ChargeStatus int

const (
	// StatusNotFound means no cached result and no in-flight request.
	StatusNotFound ChargeStatus = iota
	// StatusCached means a cached result was found.
	StatusCached
	// StatusInFlight means another request is currently creating this charge.
	StatusInFlight
)

// ChargeStore defines the interface for charge idempotency storage.
// Implementations must be safe for concurrent use.
//
// The interface supports both in-memory and distributed backends (Redis,
// database, etc.) for different deployment scenarios.
type ChargeStore interface {
	// CheckAndMark atomically checks the store and marks the key as in-flight
	// if needed.
	//
	// Returns:
	//   - StatusCached + result + nil: a cached result exists, return it immediately
	//   - StatusInFlight + nil + done: another request is processing, wait on done
	//   - StatusNotFound + nil + done: this request should proceed (now marked in-flight)
	//
	// The done channel signals completion to waiting goroutines. It must be
	// passed to Complete() or Fail() when the operation finishes.
	CheckAndMark(key string) (ChargeStatus, *openpay.IncomingPayment, chan struct{})

	// WaitForResult waits for an in-flight request to complete, respecting
	// context cancellation.
	//
	// Returns:
	//   - The cached result if the in-flight request succeeded
	//   - nil if the in-flight request failed (caller should retry)
	//   - Error if the context was cancelled
	WaitForResult(ctx context.Context, key string, done chan struct{}) (*openpay.IncomingPayment, error)

	// Complete marks a charge as created, caches the payment, and signals
	// any waiting goroutines via the done channel.
	//
	// The done channel must be the same one returned by CheckAndMark.
	Complete(key string, payment *openpay.IncomingPayment, done chan struct{})

	// Fail removes the in-flight marker without caching a result, signaling
	// waiters that they should retry.
	//
	// The done channel must be the same one returned by CheckAndMark.
	Fail(key string, done chan struct{})
}
