package snapcache

import (
	"context"

	"github.com/unkn0wn-root/snapcache/snapshot"
	"github.com/unkn0wn-root/snapcache/storage"
)

// Generator is the expensive operation an occasion caches. It must be
// deterministic for a given input and safe to call more than once.
type Generator[I, R any] func(ctx context.Context, in I) (R, error)

// Occasion is the cache orchestration bound to one operation kind.
type Occasion[I, R any] interface {
	// UseCache returns the cached result for in when its snapshot is still
	// valid (hit=true). Otherwise it runs gen, snapshots the result's
	// dependencies and stores both. Generator errors are returned unchanged
	// and nothing is written; a snapshot failure yields *SnapshotError.
	UseCache(ctx context.Context, in I, gen Generator[I, R]) (r R, hit bool, err error)

	// Key returns the storage key derived for in.
	Key(in I) string

	// Enabled reports whether a Storage is configured.
	Enabled() bool
	Close(context.Context) error
}

// Options configure an occasion. Kind and KeyFields are required, and
// Snapshots is required whenever Storage is set.
type Options[I, R any] struct {
	Kind string // operation kind, e.g. "resolve"; part of every key

	Storage   storage.Storage[R] // nil => bypass, gen is always called
	Snapshots *snapshot.Manager  // shared across occasions
	Select    snapshot.Selector  // nil => snapshot.ResolveSelector

	// KeyFields lists every input that affects the generator's output, in a
	// fixed order. Fields are length-prefixed before hashing so separators
	// inside a field cannot collide.
	KeyFields func(in I) []string

	// Dependencies lists the paths a successful result depends on. A result
	// naming a concrete file must list that file. nil => no paths.
	Dependencies func(in I, r R) []string

	// Clone copies a cached result before it is handed out. nil => results
	// are returned as stored.
	Clone func(R) R

	KeyVersion string // bump to orphan every entry of this kind
	Logger     Logger // nil => NopLogger
	Hooks      Hooks  // nil => NopHooks

	// DisableSingleFlight lets concurrent misses on one key all run the
	// generator; last write wins.
	DisableSingleFlight bool

	// DegradeOnSnapshotError returns a successfully generated result
	// uncached when its snapshot cannot be created, instead of failing the
	// call with *SnapshotError.
	DegradeOnSnapshotError bool
}

func New[I, R any](opts Options[I, R]) (Occasion[I, R], error) {
	return newOccasion(opts)
}
