// Package stats counts occasion events per kind. It implements
// snapcache.Hooks and is cheap enough to sit on the hit path.
package stats

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/snapcache"
)

type counters struct {
	hits, bypasses, coalesced  atomic.Uint64
	storageErrs, snapshotErrs  atomic.Uint64
	absent, stale, validateErr atomic.Uint64
	storageMiss, otherMiss     atomic.Uint64
}

// Stats is safe for concurrent use. The zero value is not usable; call New.
type Stats struct {
	mu    sync.RWMutex
	kinds map[string]*counters
}

var _ snapcache.Hooks = (*Stats)(nil)

func New() *Stats { return &Stats{kinds: make(map[string]*counters)} }

// Kind is a point-in-time copy of one kind's counters.
type Kind struct {
	Hits           uint64
	Misses         map[string]uint64 // by reason
	Bypasses       uint64
	Coalesced      uint64
	StorageErrors  uint64
	SnapshotErrors uint64
}

// HitRatio is hits / (hits + misses), 0 when nothing was looked up.
func (k Kind) HitRatio() float64 {
	var misses uint64
	for _, n := range k.Misses {
		misses += n
	}
	if k.Hits+misses == 0 {
		return 0
	}
	return float64(k.Hits) / float64(k.Hits+misses)
}

func (s *Stats) get(kind string) *counters {
	s.mu.RLock()
	c, ok := s.kinds[kind]
	s.mu.RUnlock()
	if ok {
		return c
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.kinds[kind]; !ok {
		c = new(counters)
		s.kinds[kind] = c
	}
	return c
}

func (s *Stats) Hit(kind string)       { s.get(kind).hits.Add(1) }
func (s *Stats) Bypass(kind string)    { s.get(kind).bypasses.Add(1) }
func (s *Stats) Coalesced(kind string) { s.get(kind).coalesced.Add(1) }

func (s *Stats) Miss(kind, reason string) {
	c := s.get(kind)
	switch reason {
	case snapcache.MissAbsent:
		c.absent.Add(1)
	case snapcache.MissStale:
		c.stale.Add(1)
	case snapcache.MissValidateError:
		c.validateErr.Add(1)
	case snapcache.MissStorageError:
		c.storageMiss.Add(1)
	default:
		c.otherMiss.Add(1)
	}
}

func (s *Stats) StorageError(kind, _ string, _ error) { s.get(kind).storageErrs.Add(1) }
func (s *Stats) SnapshotError(kind string, _ error)   { s.get(kind).snapshotErrs.Add(1) }

// Snapshot copies all counters. Zero miss reasons are omitted.
func (s *Stats) Snapshot() map[string]Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Kind, len(s.kinds))
	for name, c := range s.kinds {
		k := Kind{
			Hits:           c.hits.Load(),
			Misses:         make(map[string]uint64),
			Bypasses:       c.bypasses.Load(),
			Coalesced:      c.coalesced.Load(),
			StorageErrors:  c.storageErrs.Load(),
			SnapshotErrors: c.snapshotErrs.Load(),
		}
		for reason, n := range map[string]uint64{
			snapcache.MissAbsent:        c.absent.Load(),
			snapcache.MissStale:         c.stale.Load(),
			snapcache.MissValidateError: c.validateErr.Load(),
			snapcache.MissStorageError:  c.storageMiss.Load(),
			"other":                     c.otherMiss.Load(),
		} {
			if n > 0 {
				k.Misses[reason] = n
			}
		}
		out[name] = k
	}
	return out
}
