// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    MissEvery: 100, // sample: ~every 100th miss
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	occ, _ := snapcache.New(snapcache.Options[Args, Result]{
//	    Kind:      "resolve",
//	    Storage:   memory.New[Result](),
//	    Snapshots: manager,
//	    KeyFields: keyFields,
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/snapcache"
)

// Hooks forwards events to inner on worker goroutines. Events are dropped
// when the queue is full so the occasion never blocks on a slow sink.
type Hooks struct {
	inner   snapcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against concurrent sends
	closed  bool
	dropped atomic.Uint64
}

var _ snapcache.Hooks = (*Hooks)(nil)

func New(inner snapcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) Hit(kind string)          { h.try(func() { h.inner.Hit(kind) }) }
func (h *Hooks) Miss(kind, reason string) { h.try(func() { h.inner.Miss(kind, reason) }) }
func (h *Hooks) Bypass(kind string)       { h.try(func() { h.inner.Bypass(kind) }) }
func (h *Hooks) Coalesced(kind string)    { h.try(func() { h.inner.Coalesced(kind) }) }
func (h *Hooks) StorageError(kind, op string, err error) {
	h.try(func() { h.inner.StorageError(kind, op, err) })
}
func (h *Hooks) SnapshotError(kind string, err error) {
	h.try(func() { h.inner.SnapshotError(kind, err) })
}
