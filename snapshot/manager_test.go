package snapshot

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyFs fails Stat with a permission error while fail is set.
type flakyFs struct {
	afero.Fs
	fail atomic.Bool
}

func (f *flakyFs) Stat(name string) (os.FileInfo, error) {
	if f.fail.Load() {
		return nil, &os.PathError{Op: "stat", Path: name, Err: fs.ErrPermission}
	}
	return f.Fs.Stat(name)
}

func writeFile(t *testing.T, fsys afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0o644))
}

func touch(t *testing.T, fsys afero.Fs, path string, at time.Time) {
	t.Helper()
	require.NoError(t, fsys.Chtimes(path, at, at))
}

func newTestManager(t *testing.T, opts Options, mopts ...ManagerOption) (*Manager, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/proj", 0o755))
	return NewManager(opts, append([]ManagerOption{WithFs(fsys)}, mopts...)...), fsys
}

func TestCreateThenCheckIsValid(t *testing.T) {
	ctx := context.Background()
	m, fsys := newTestManager(t, Options{})
	writeFile(t, fsys, "/proj/a.js", "export default 1")

	s, err := m.Create(ctx, []string{"/proj/a.js"}, ResolveSelector)
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())

	st, fp, ok := s.Lookup("/proj/a.js")
	require.True(t, ok)
	assert.Equal(t, Hash, st)
	assert.True(t, fp.Exists)
	assert.NotZero(t, fp.Hash)

	valid, err := m.Check(ctx, s)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestRecreatedSnapshotsAreEqualAndValid(t *testing.T) {
	ctx := context.Background()
	m, fsys := newTestManager(t, Options{Resolve: TimestampHash})
	writeFile(t, fsys, "/proj/a.js", "a")
	writeFile(t, fsys, "/proj/b.js", "b")

	paths := []string{"/proj/b.js", "/proj/a.js"}
	s1, err := m.Create(ctx, paths, ResolveSelector)
	require.NoError(t, err)
	s2, err := m.Create(ctx, paths, ResolveSelector)
	require.NoError(t, err)

	assert.True(t, s1.Equal(s2))
	for _, s := range []*Snapshot{s1, s2} {
		valid, err := m.Check(ctx, s)
		require.NoError(t, err)
		assert.True(t, valid)
	}
}

func TestTouchWithoutContentChange(t *testing.T) {
	ctx := context.Background()
	later := time.Now().Add(time.Hour)

	tests := []struct {
		name     string
		strategy Strategy
		valid    bool
	}{
		{"hash ignores mtime", Hash, true},
		{"timestamp sees mtime", Timestamp, false},
		{"timestamp+hash falls back to content", TimestampHash, true},
		{"existence ignores everything", Existence, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, fsys := newTestManager(t, Options{})
			writeFile(t, fsys, "/proj/a.js", "same")

			s, err := m.Create(ctx, []string{"/proj/a.js"}, Fixed(tc.strategy))
			require.NoError(t, err)

			touch(t, fsys, "/proj/a.js", later)

			valid, err := m.Check(ctx, s)
			require.NoError(t, err)
			assert.Equal(t, tc.valid, valid)
		})
	}
}

func TestContentChangeInvalidates(t *testing.T) {
	ctx := context.Background()
	for _, st := range []Strategy{Hash, Timestamp, TimestampHash} {
		t.Run(st.String(), func(t *testing.T) {
			m, fsys := newTestManager(t, Options{})
			writeFile(t, fsys, "/proj/a.js", "v1")

			s, err := m.Create(ctx, []string{"/proj/a.js"}, Fixed(st))
			require.NoError(t, err)

			writeFile(t, fsys, "/proj/a.js", "version two")

			changed, err := m.Diff(ctx, s)
			require.NoError(t, err)
			assert.Equal(t, "/proj/a.js", changed)
		})
	}
}

func TestTimestampHashSameSizeDifferentContent(t *testing.T) {
	ctx := context.Background()
	m, fsys := newTestManager(t, Options{Resolve: TimestampHash})
	writeFile(t, fsys, "/proj/a.js", "aaaa")

	s, err := m.Create(ctx, []string{"/proj/a.js"}, ResolveSelector)
	require.NoError(t, err)

	writeFile(t, fsys, "/proj/a.js", "bbbb")
	touch(t, fsys, "/proj/a.js", time.Now().Add(time.Minute))

	valid, err := m.Check(ctx, s)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestAbsenceIsAFingerprint(t *testing.T) {
	ctx := context.Background()
	m, fsys := newTestManager(t, Options{})

	s, err := m.Create(ctx, []string{"/proj/missing.js"}, ResolveSelector)
	require.NoError(t, err)
	_, fp, ok := s.Lookup("/proj/missing.js")
	require.True(t, ok)
	assert.False(t, fp.Exists)

	valid, err := m.Check(ctx, s)
	require.NoError(t, err)
	assert.True(t, valid, "still missing is still valid")

	writeFile(t, fsys, "/proj/missing.js", "now here")
	valid, err = m.Check(ctx, s)
	require.NoError(t, err)
	assert.False(t, valid, "appearing path invalidates")

	s, err = m.Create(ctx, []string{"/proj/missing.js"}, ResolveSelector)
	require.NoError(t, err)
	require.NoError(t, fsys.Remove("/proj/missing.js"))
	valid, err = m.Check(ctx, s)
	require.NoError(t, err)
	assert.False(t, valid, "disappearing path invalidates")
}

func TestPathUnderFileIsAbsent(t *testing.T) {
	ctx := context.Background()
	m, fsys := newTestManager(t, Options{})
	writeFile(t, fsys, "/proj/a.js", "x")

	s, err := m.Create(ctx, []string{"/proj/a.js/index.js"}, ResolveSelector)
	require.NoError(t, err)
	_, fp, ok := s.Lookup("/proj/a.js/index.js")
	require.True(t, ok)
	assert.False(t, fp.Exists)
}

func TestDirectoryHashTracksChildren(t *testing.T) {
	ctx := context.Background()
	m, fsys := newTestManager(t, Options{})
	require.NoError(t, fsys.MkdirAll("/proj/pkg", 0o755))
	writeFile(t, fsys, "/proj/pkg/index.js", "x")

	s, err := m.Create(ctx, []string{"/proj/pkg"}, Fixed(Hash))
	require.NoError(t, err)

	valid, err := m.Check(ctx, s)
	require.NoError(t, err)
	require.True(t, valid)

	writeFile(t, fsys, "/proj/pkg/other.js", "y")
	valid, err = m.Check(ctx, s)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestImmutablePathsUseExistence(t *testing.T) {
	ctx := context.Background()
	m, fsys := newTestManager(t, Options{ImmutablePaths: []string{"/proj/.store/"}})
	require.NoError(t, fsys.MkdirAll("/proj/.store/lib@1.0.0", 0o755))
	writeFile(t, fsys, "/proj/.store/lib@1.0.0/index.js", "v1")
	writeFile(t, fsys, "/proj/.storefront.js", "v1")

	s, err := m.Create(ctx, []string{"/proj/.store/lib@1.0.0/index.js", "/proj/.storefront.js"}, Fixed(Hash))
	require.NoError(t, err)

	st, _, _ := s.Lookup("/proj/.store/lib@1.0.0/index.js")
	assert.Equal(t, Existence, st)
	st, _, _ = s.Lookup("/proj/.storefront.js")
	assert.Equal(t, Hash, st, "prefix match must respect path boundaries")

	writeFile(t, fsys, "/proj/.store/lib@1.0.0/index.js", "rewritten")
	valid, err := m.Check(ctx, s)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestCreateNormalizesPaths(t *testing.T) {
	ctx := context.Background()
	m, fsys := newTestManager(t, Options{})
	writeFile(t, fsys, "/proj/a.js", "a")
	writeFile(t, fsys, "/proj/b.js", "b")

	s, err := m.Create(ctx, []string{"/proj/b.js", "/proj/./a.js", "", "/proj/a.js", "/proj/x/../b.js"}, ResolveSelector)
	require.NoError(t, err)
	assert.Equal(t, []string{"/proj/a.js", "/proj/b.js"}, s.Paths())

	empty, err := m.Create(ctx, nil, ResolveSelector)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
	valid, err := m.Check(ctx, empty)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestCreateFailsOnUnreadablePath(t *testing.T) {
	ctx := context.Background()
	ffs := &flakyFs{Fs: afero.NewMemMapFs()}
	m := NewManager(Options{}, WithFs(ffs))
	writeFile(t, ffs, "/proj/a.js", "a")
	writeFile(t, ffs, "/proj/b.js", "b")
	ffs.fail.Store(true)

	_, err := m.Create(ctx, []string{"/proj/a.js", "/proj/b.js"}, ResolveSelector)
	require.Error(t, err)

	var pe *PathError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.Equal(t, Hash, pe.Strategy)
}

func TestCheckReportsIOFailure(t *testing.T) {
	ctx := context.Background()
	ffs := &flakyFs{Fs: afero.NewMemMapFs()}
	m := NewManager(Options{}, WithFs(ffs))
	writeFile(t, ffs, "/proj/a.js", "a")

	s, err := m.Create(ctx, []string{"/proj/a.js"}, ResolveSelector)
	require.NoError(t, err)

	ffs.fail.Store(true)
	valid, err := m.Check(ctx, s)
	assert.False(t, valid)
	assert.ErrorIs(t, err, fs.ErrPermission)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m, fsys := newTestManager(t, Options{})
	writeFile(t, fsys, "/proj/a.js", "a")
	cancel()

	_, err := m.Create(ctx, []string{"/proj/a.js"}, ResolveSelector)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoHoldsUntilReset(t *testing.T) {
	ctx := context.Background()
	m, fsys := newTestManager(t, Options{}, WithMemo())
	writeFile(t, fsys, "/proj/a.js", "v1")

	s, err := m.Create(ctx, []string{"/proj/a.js"}, ResolveSelector)
	require.NoError(t, err)

	writeFile(t, fsys, "/proj/a.js", "changed during the run")
	valid, err := m.Check(ctx, s)
	require.NoError(t, err)
	assert.True(t, valid, "memoized fingerprint is reused within a run")

	m.Reset()
	valid, err = m.Check(ctx, s)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestSnapshotBinaryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, fsys := newTestManager(t, Options{Resolve: TimestampHash})
	writeFile(t, fsys, "/proj/a.js", "a")

	s, err := m.Create(ctx, []string{"/proj/a.js", "/proj/gone.js"}, ResolveSelector)
	require.NoError(t, err)

	b, err := s.MarshalBinary()
	require.NoError(t, err)
	got, err := Decode(b)
	require.NoError(t, err)
	assert.True(t, s.Equal(got))

	valid, err := m.Check(ctx, got)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestDecodeRejectsInvalidStrategy(t *testing.T) {
	s := &Snapshot{records: []record{{path: "/a", strategy: Strategy(42)}}}
	b, err := s.MarshalBinary()
	require.NoError(t, err)
	_, err = Decode(b)
	assert.Error(t, err)
}

func TestNilSnapshot(t *testing.T) {
	var s *Snapshot
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Paths())
	assert.True(t, s.Equal(&Snapshot{}))

	m := NewManager(Options{}, WithFs(afero.NewMemMapFs()))
	valid, err := m.Check(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestCreateManyPathsConcurrently(t *testing.T) {
	ctx := context.Background()
	m, fsys := newTestManager(t, Options{Concurrency: 3})
	var paths []string
	for _, n := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		p := "/proj/" + n + ".js"
		writeFile(t, fsys, p, n)
		paths = append(paths, p)
	}

	s, err := m.Create(ctx, paths, ResolveSelector)
	require.NoError(t, err)
	require.Equal(t, len(paths), s.Len())
	for _, p := range paths {
		_, fp, ok := s.Lookup(p)
		require.True(t, ok)
		assert.True(t, fp.Exists, p)
	}
}

func TestPathErrorMessage(t *testing.T) {
	err := &PathError{Path: "/x", Strategy: Hash, Err: errors.New("boom")}
	assert.Equal(t, `snapshot: fingerprint "/x" (hash): boom`, err.Error())
}
