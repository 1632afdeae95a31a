// Package provider defines the byte store that persisted snapcache storage
// is built on.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the []byte previously passed to Set for a key. Internal transforms
// (compression, headers) must be fully reversed before Get returns.
//
// Keys written by snapcache start with "k1:<kind>:". Foreign values under
// that prefix fail frame validation and are deleted on read.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs. Must be safe for concurrent use.
// Eviction policy belongs to the implementation.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (<=0: no expiry). May ignore cost.
	// Returns ok=false when the store rejected the write under pressure.
	// A Set is a single atomic replacement of the previous value.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
