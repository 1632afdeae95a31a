package snapshot

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Manager creates and validates snapshots. It is the only authority on what
// "still valid" means and is safe to share across occasions and goroutines.
type Manager struct {
	opts Options
	src  Source
	memo *memo // nil unless WithMemo
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSource replaces the fingerprint source.
func WithSource(src Source) ManagerOption {
	return func(m *Manager) { m.src = src }
}

// WithFs fingerprints paths on fsys instead of the OS filesystem.
func WithFs(fsys afero.Fs) ManagerOption {
	return func(m *Manager) { m.src = NewFSSource(fsys) }
}

// WithMemo memoizes fingerprints per (path, strategy) until Reset. Call
// Reset at the start of every build run, otherwise changes made during the
// lifetime of the manager go unnoticed.
func WithMemo() ManagerOption {
	return func(m *Manager) { m.memo = &memo{m: make(map[memoKey]Fingerprint)} }
}

func NewManager(opts Options, mopts ...ManagerOption) *Manager {
	m := &Manager{opts: opts.withDefaults()}
	for _, o := range mopts {
		o(m)
	}
	if m.src == nil {
		m.src = NewFSSource(nil)
	}
	return m
}

// Options returns the effective options (defaults applied).
func (m *Manager) Options() Options { return m.opts }

// Reset drops memoized fingerprints. No-op without WithMemo.
func (m *Manager) Reset() {
	if m.memo != nil {
		m.memo.reset()
	}
}

// Create fingerprints every path (deduplicated, cleaned) using the strategy
// picked by sel. Paths under Options.ImmutablePaths always use Existence.
// A missing path is recorded as absent; any other failure aborts with a
// *PathError.
func (m *Manager) Create(ctx context.Context, paths []string, sel Selector) (*Snapshot, error) {
	if sel == nil {
		sel = ResolveSelector
	}
	uniq := normalize(paths)
	recs := make([]record, len(uniq))
	for i, p := range uniq {
		recs[i] = record{path: p, strategy: m.strategyFor(sel, p)}
	}

	fill := func(ctx context.Context, i int) error {
		fp, err := m.fingerprint(ctx, recs[i].path, recs[i].strategy)
		if err != nil {
			return err
		}
		recs[i].fp = fp
		return nil
	}

	if len(recs) <= 1 {
		for i := range recs {
			if err := fill(ctx, i); err != nil {
				return nil, err
			}
		}
		return &Snapshot{records: recs}, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)
	for i := range recs {
		i := i
		g.Go(func() error { return fill(gctx, i) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Snapshot{records: recs}, nil
}

// Check recomputes every fingerprint with its stored strategy and reports
// whether all of them still match. It stops at the first mismatch. An I/O
// failure yields (false, err); callers decide whether that is fatal.
func (m *Manager) Check(ctx context.Context, s *Snapshot) (bool, error) {
	changed, err := m.Diff(ctx, s)
	if err != nil {
		return false, err
	}
	return changed == "", nil
}

// Diff is Check that also names the first path whose fingerprint moved.
// It returns "" when the snapshot is still valid.
func (m *Manager) Diff(ctx context.Context, s *Snapshot) (string, error) {
	for i := 0; i < s.Len(); i++ {
		r := s.records[i]
		ok, err := m.matches(ctx, r)
		if err != nil {
			return r.path, err
		}
		if !ok {
			return r.path, nil
		}
	}
	return "", nil
}

func (m *Manager) matches(ctx context.Context, r record) (bool, error) {
	switch r.strategy {
	case TimestampHash:
		// timestamp fast path, then hash on a moved timestamp
		cur, err := m.fingerprint(ctx, r.path, Timestamp)
		if err != nil {
			return false, err
		}
		if cur.Exists != r.fp.Exists {
			return false, nil
		}
		if !cur.Exists || (cur.ModTime == r.fp.ModTime && cur.Size == r.fp.Size) {
			return true, nil
		}
		if cur.Size != r.fp.Size {
			return false, nil
		}
		cur, err = m.fingerprint(ctx, r.path, Hash)
		if err != nil {
			return false, err
		}
		return cur.Exists && cur.Hash == r.fp.Hash, nil
	default:
		cur, err := m.fingerprint(ctx, r.path, r.strategy)
		if err != nil {
			return false, err
		}
		return cur == r.fp, nil
	}
}

func (m *Manager) strategyFor(sel Selector, path string) Strategy {
	if m.opts.Immutable(path) {
		return Existence
	}
	s := sel(m.opts, path)
	if !s.Valid() {
		return defaultStrategy
	}
	return s
}

func (m *Manager) fingerprint(ctx context.Context, path string, s Strategy) (Fingerprint, error) {
	if m.memo == nil {
		return m.src.Fingerprint(ctx, path, s)
	}
	k := memoKey{path: path, strategy: s}
	if fp, ok := m.memo.get(k); ok {
		return fp, nil
	}
	fp, err := m.src.Fingerprint(ctx, path, s)
	if err != nil {
		return Fingerprint{}, err
	}
	m.memo.put(k, fp)
	return fp, nil
}

func normalize(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		out = append(out, filepath.Clean(p))
	}
	sort.Strings(out)
	w := 0
	for i, p := range out {
		if i > 0 && p == out[w-1] {
			continue
		}
		out[w] = p
		w++
	}
	return out[:w]
}

type memoKey struct {
	path     string
	strategy Strategy
}

type memo struct {
	mu sync.RWMutex
	m  map[memoKey]Fingerprint
}

func (c *memo) get(k memoKey) (Fingerprint, bool) {
	c.mu.RLock()
	fp, ok := c.m[k]
	c.mu.RUnlock()
	return fp, ok
}

func (c *memo) put(k memoKey, fp Fingerprint) {
	c.mu.Lock()
	c.m[k] = fp
	c.mu.Unlock()
}

func (c *memo) reset() {
	c.mu.Lock()
	clear(c.m)
	c.mu.Unlock()
}
