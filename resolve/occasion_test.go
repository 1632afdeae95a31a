package resolve

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/snapcache"
	"github.com/unkn0wn-root/snapcache/provider/disk"
	"github.com/unkn0wn-root/snapcache/snapshot"
	"github.com/unkn0wn-root/snapcache/storage"
	"github.com/unkn0wn-root/snapcache/storage/memory"
)

// fakeResolver maps specifiers relative to the context onto files of fsys.
type fakeResolver struct {
	fs    afero.Fs
	calls atomic.Int32
}

func (r *fakeResolver) resolve(_ context.Context, args Args) (Result, error) {
	r.calls.Add(1)
	if args.Specifier == "ignored" {
		return Ignored(), nil
	}
	p := filepath.Join(args.Context, args.Specifier)
	if ok, _ := afero.Exists(r.fs, p); !ok {
		return Result{}, &Error{Message: "Can't resolve '" + args.Specifier + "'", Err: ErrNotFound}
	}
	return Resolved(Resource{Path: p, DescriptionPath: filepath.Join(args.Context, "package.json")}), nil
}

func newDiskOccasion(t *testing.T, projFs, cacheFs afero.Fs) *Occasion {
	t.Helper()
	p, err := disk.New(disk.Config{Root: "/cache", Fs: cacheFs})
	require.NoError(t, err)
	st, err := NewStorage(p, storage.EncodedOptions{TTL: 24 * time.Hour})
	require.NoError(t, err)
	occ, err := NewOccasion(Config{
		Storage:   st,
		Snapshots: snapshot.NewManager(snapshot.Options{}, snapshot.WithFs(projFs)),
	})
	require.NoError(t, err)
	return occ
}

func TestTouchKeepsHitModifyInvalidates(t *testing.T) {
	ctx := context.Background()
	projFs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(projFs, "/proj/a.js", []byte("export default 1"), 0o644))
	res := &fakeResolver{fs: projFs}
	args := Args{Context: "/proj", Specifier: "./a.js", DependencyType: EsmImport}

	occ, err := NewOccasion(Config{
		Storage:   memory.New[Result](),
		Snapshots: snapshot.NewManager(snapshot.Options{}, snapshot.WithFs(projFs)),
	})
	require.NoError(t, err)

	r, hit, err := occ.UseCache(ctx, args, res.resolve)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "/proj/a.js", r.Resource.Path)

	later := time.Now().Add(time.Hour)
	require.NoError(t, projFs.Chtimes("/proj/a.js", later, later))
	r, hit, err = occ.UseCache(ctx, args, res.resolve)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int32(1), res.calls.Load())

	require.NoError(t, afero.WriteFile(projFs, "/proj/a.js", []byte("export default 2"), 0o644))
	_, hit, err = occ.UseCache(ctx, args, res.resolve)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(2), res.calls.Load())

	// deleting the file invalidates too, and the resolver error comes back as is
	require.NoError(t, projFs.Remove("/proj/a.js"))
	_, hit, err = occ.UseCache(ctx, args, res.resolve)
	assert.False(t, hit)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	projFs := afero.NewMemMapFs()
	cacheFs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(projFs, "/proj/src/b.js", []byte("b"), 0o644))
	args := Args{Context: "/proj/src/", Importer: "/proj/src/index.js", Specifier: "./b.js", DependencyType: EsmImport}

	first := &fakeResolver{fs: projFs}
	r, hit, err := newDiskOccasion(t, projFs, cacheFs).UseCache(ctx, args, first.resolve)
	require.NoError(t, err)
	require.False(t, hit)

	// a fresh process sees the entry on disk
	second := &fakeResolver{fs: projFs}
	got, hit, err := newDiskOccasion(t, projFs, cacheFs).UseCache(ctx, args, second.resolve)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, r, got)
	assert.Equal(t, int32(0), second.calls.Load())
}

func TestIgnoredIsCachedWithoutPaths(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	store := memory.New[Result]()
	occ, err := NewOccasion(Config{Storage: store, Snapshots: snapshot.NewManager(snapshot.Options{}, snapshot.WithFs(fsys))})
	require.NoError(t, err)
	res := &fakeResolver{fs: fsys}
	args := Args{Context: "/proj", Specifier: "ignored", DependencyType: CjsRequire}

	for i := 0; i < 2; i++ {
		r, _, err := occ.UseCache(ctx, args, res.resolve)
		require.NoError(t, err)
		assert.Equal(t, KindIgnored, r.Kind)
	}
	assert.Equal(t, int32(1), res.calls.Load())

	e, ok, _ := store.Get(ctx, occ.Key(args))
	require.True(t, ok)
	assert.Equal(t, 0, e.Snapshot.Len())
}

func TestKeyFields(t *testing.T) {
	occ, err := NewOccasion(Config{})
	require.NoError(t, err)
	assert.False(t, occ.Enabled())

	base := Args{Context: "/proj", Specifier: "./a.js", DependencyType: EsmImport}
	assert.Equal(t, occ.Key(base), occ.Key(Args{Context: "/proj/./", Specifier: "./a.js", DependencyType: EsmImport}))

	for _, other := range []Args{
		{Context: "/proj", Specifier: "./a.js", DependencyType: CjsRequire},
		{Context: "/proj", Importer: "/proj/index.js", Specifier: "./a.js", DependencyType: EsmImport},
		{Context: "/other", Specifier: "./a.js", DependencyType: EsmImport},
	} {
		assert.NotEqual(t, occ.Key(base), occ.Key(other), "%+v", other)
	}
}

type deniedSource struct{}

func (deniedSource) Fingerprint(_ context.Context, path string, s snapshot.Strategy) (snapshot.Fingerprint, error) {
	return snapshot.Fingerprint{}, &snapshot.PathError{Path: path, Strategy: s, Err: errors.New("permission denied")}
}

func TestSnapshotFailureBecomesResolveError(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/proj/a.js", nil, 0o644))
	occ, err := NewOccasion(Config{
		Storage:   memory.New[Result](),
		Snapshots: snapshot.NewManager(snapshot.Options{}, snapshot.WithSource(deniedSource{})),
	})
	require.NoError(t, err)

	_, hit, err := occ.UseCache(ctx, Args{Context: "/proj", Specifier: "./a.js"}, (&fakeResolver{fs: fsys}).resolve)
	assert.False(t, hit)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Message, "permission denied")
	var serr *snapcache.SnapshotError
	assert.ErrorAs(t, err, &serr)
	var perr *snapshot.PathError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "/proj/a.js", perr.Path)
}
