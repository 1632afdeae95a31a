package snapshot

import (
	"fmt"
	"sort"

	"github.com/unkn0wn-root/snapcache/internal/wire"
)

type record struct {
	path     string
	strategy Strategy
	fp       Fingerprint
}

// Snapshot is an immutable record of dependency paths and the fingerprints
// observed when it was taken. Records are sorted by path. A nil *Snapshot
// behaves as an empty one.
type Snapshot struct {
	records []record
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Paths returns the watched paths in sorted order.
func (s *Snapshot) Paths() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = r.path
	}
	return out
}

// Lookup returns the stored strategy and fingerprint for path.
func (s *Snapshot) Lookup(path string) (Strategy, Fingerprint, bool) {
	if s == nil {
		return 0, Fingerprint{}, false
	}
	i := sort.Search(len(s.records), func(i int) bool { return s.records[i].path >= path })
	if i < len(s.records) && s.records[i].path == path {
		r := s.records[i]
		return r.strategy, r.fp, true
	}
	return 0, Fingerprint{}, false
}

// Equal reports whether both snapshots watch the same paths with the same
// strategies and fingerprints.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s.Len() != o.Len() {
		return false
	}
	for i := 0; i < s.Len(); i++ {
		if s.records[i] != o.records[i] {
			return false
		}
	}
	return true
}

func (s *Snapshot) MarshalBinary() ([]byte, error) {
	var recs []wire.Record
	if n := s.Len(); n > 0 {
		recs = make([]wire.Record, n)
		for i, r := range s.records {
			recs[i] = wire.Record{
				Path:     r.path,
				Strategy: byte(r.strategy),
				Exists:   r.fp.Exists,
				ModTime:  r.fp.ModTime,
				Size:     r.fp.Size,
				Hash:     r.fp.Hash,
			}
		}
	}
	return wire.EncodeSnapshot(recs)
}

// Decode parses the output of MarshalBinary.
func Decode(b []byte) (*Snapshot, error) {
	recs, err := wire.DecodeSnapshot(b)
	if err != nil {
		return nil, err
	}
	s := &Snapshot{records: make([]record, len(recs))}
	for i, r := range recs {
		st := Strategy(r.Strategy)
		if !st.Valid() {
			return nil, fmt.Errorf("%w: strategy %d", wire.ErrCorrupt, r.Strategy)
		}
		if i > 0 && recs[i-1].Path >= r.Path {
			return nil, fmt.Errorf("%w: unsorted paths", wire.ErrCorrupt)
		}
		s.records[i] = record{
			path:     r.Path,
			strategy: st,
			fp: Fingerprint{
				Exists:  r.Exists,
				ModTime: r.ModTime,
				Size:    r.Size,
				Hash:    r.Hash,
			},
		}
	}
	return s, nil
}
