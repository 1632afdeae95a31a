package snapcache

import (
	"fmt"
)

// SnapshotError reports that a generated result could not be cached because
// its dependencies could not be fingerprinted. The generator itself
// succeeded.
type SnapshotError struct {
	Kind  string
	Key   string
	Paths []string
	Err   error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("%s: snapshot %d dependency path(s) for %s: %v", e.Kind, len(e.Paths), e.Key, e.Err)
}

func (e *SnapshotError) Unwrap() error { return e.Err }

// PanicError carries a generator panic out of a coalesced call. The caller
// that ran the generator re-panics with it; callers that were waiting on
// that run receive it as an error.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("snapcache: generator panicked: %v\n\n%s", e.Value, e.Stack)
}
