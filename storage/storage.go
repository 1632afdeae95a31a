// Package storage holds cached entries for occasions.
//
// Storage performs no validation: an entry is returned exactly as written
// and the occasion decides whether its snapshot still holds. Every Set is a
// single atomic upsert of (snapshot, result), so a reader never sees a
// result paired with another write's snapshot.
package storage

import (
	"context"

	"github.com/unkn0wn-root/snapcache/snapshot"
)

// Entry is a cached result and the snapshot of the paths it depends on.
type Entry[R any] struct {
	Snapshot *snapshot.Snapshot
	Result   R
}

// Storage is a keyed store of entries. Must be safe for concurrent use.
type Storage[R any] interface {
	// Get returns (entry, true, nil) on hit and (zero, false, nil) on miss.
	Get(ctx context.Context, key string) (Entry[R], bool, error)
	// Set replaces any previous entry under key.
	Set(ctx context.Context, key string, e Entry[R]) error
	Close(ctx context.Context) error
}
