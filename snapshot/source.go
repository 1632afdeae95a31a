package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"sync"
	"syscall"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
)

// Fingerprint is a comparable summary of a path's state. Which fields are
// populated depends on the strategy it was computed with; absence is a valid
// fingerprint (Exists=false), not an error.
type Fingerprint struct {
	Exists  bool
	ModTime int64 // unix nanoseconds
	Size    int64
	Hash    uint64
}

// Source computes fingerprints. Implementations must be safe for concurrent use.
type Source interface {
	Fingerprint(ctx context.Context, path string, s Strategy) (Fingerprint, error)
}

// PathError reports a path that could not be fingerprinted.
type PathError struct {
	Path     string
	Strategy Strategy
	Err      error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("snapshot: fingerprint %q (%s): %v", e.Path, e.Strategy, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

const defaultBufferSize = 32 * 1024

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, defaultBufferSize)
		return &b
	},
}

// FSSource fingerprints paths on an afero filesystem.
type FSSource struct {
	fs afero.Fs
}

var _ Source = (*FSSource)(nil)

// NewFSSource returns a Source over fsys; nil means the OS filesystem.
func NewFSSource(fsys afero.Fs) *FSSource {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &FSSource{fs: fsys}
}

func (s *FSSource) Fingerprint(ctx context.Context, path string, st Strategy) (Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return Fingerprint{}, err
	}
	info, err := s.fs.Stat(path)
	if err != nil {
		if isAbsent(err) {
			return Fingerprint{}, nil
		}
		return Fingerprint{}, &PathError{Path: path, Strategy: st, Err: err}
	}

	fp := Fingerprint{Exists: true}
	if st.usesTimestamp() {
		fp.ModTime = info.ModTime().UnixNano()
	}
	if !info.IsDir() && (st.usesTimestamp() || st.usesHash()) {
		fp.Size = info.Size()
	}
	if st.usesHash() {
		var h uint64
		if info.IsDir() {
			h, err = s.hashDir(path)
		} else {
			h, err = s.hashFile(path)
		}
		if err != nil {
			if isAbsent(err) {
				// removed between stat and read
				return Fingerprint{}, nil
			}
			return Fingerprint{}, &PathError{Path: path, Strategy: st, Err: err}
		}
		fp.Hash = h
	}
	return fp, nil
}

func (s *FSSource) hashFile(path string) (uint64, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	bufPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufPtr)

	d := xxhash.New()
	if _, err := io.CopyBuffer(d, f, *bufPtr); err != nil {
		return 0, err
	}
	return d.Sum64(), nil
}

// hashDir digests the sorted entry names of a directory, so adding or
// removing a child changes the fingerprint.
func (s *FSSource) hashDir(path string) (uint64, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return 0, err
	}
	sort.Strings(names)

	d := xxhash.New()
	for _, n := range names {
		_, _ = d.WriteString(n)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64(), nil
}

func isAbsent(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
