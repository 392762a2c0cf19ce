// Package idempotency deduplicates charge creation by a client-chosen key.
//
// The resource server does not deduplicate identical requests: two calls to
// create an incoming payment are two incoming payments. When a client
// retries after a timeout it therefore risks charging twice. Wrapping the
// charge starter with this package closes that window for callers that send
// an idempotency key — the first request with a given key creates the
// payment, concurrent duplicates wait for it, and later duplicates within
// the TTL get the cached result.
//
// Callers that send no key keep the raw, dedup-free behavior.
package idempotency
