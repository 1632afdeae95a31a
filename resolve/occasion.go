package resolve

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/snapcache"
	c "github.com/unkn0wn-root/snapcache/codec"
	pr "github.com/unkn0wn-root/snapcache/provider"
	"github.com/unkn0wn-root/snapcache/snapshot"
	"github.com/unkn0wn-root/snapcache/storage"
)

const (
	kind = "resolve"
	// results are a handful of short strings
	maxResultSize = 64 << 10
)

// Resolver is the uncached resolution algorithm.
type Resolver func(ctx context.Context, args Args) (Result, error)

// Config wires an Occasion. Storage nil disables caching.
type Config struct {
	Storage   storage.Storage[Result]
	Snapshots *snapshot.Manager

	Logger                 snapcache.Logger
	Hooks                  snapcache.Hooks
	DisableSingleFlight    bool
	DegradeOnSnapshotError bool
}

type Occasion struct {
	occ snapcache.Occasion[Args, Result]
}

func NewOccasion(cfg Config) (*Occasion, error) {
	occ, err := snapcache.New(snapcache.Options[Args, Result]{
		Kind:                   kind,
		Storage:                cfg.Storage,
		Snapshots:              cfg.Snapshots,
		Select:                 snapshot.ResolveSelector,
		KeyFields:              Args.keyFields,
		Dependencies:           dependencies,
		Logger:                 cfg.Logger,
		Hooks:                  cfg.Hooks,
		DisableSingleFlight:    cfg.DisableSingleFlight,
		DegradeOnSnapshotError: cfg.DegradeOnSnapshotError,
	})
	if err != nil {
		return nil, err
	}
	return &Occasion{occ: occ}, nil
}

func dependencies(_ Args, r Result) []string {
	if p, ok := r.Path(); ok {
		return []string{p}
	}
	return nil
}

// UseCache resolves args through the cache. Resolver errors come back
// unchanged. A result that cannot be snapshotted fails as *Error wrapping
// the *snapcache.SnapshotError.
func (o *Occasion) UseCache(ctx context.Context, args Args, resolve Resolver) (Result, bool, error) {
	r, hit, err := o.occ.UseCache(ctx, args, snapcache.Generator[Args, Result](resolve))
	var serr *snapcache.SnapshotError
	if errors.As(err, &serr) {
		return Result{}, false, &Error{Message: serr.Err.Error(), Err: serr}
	}
	return r, hit, err
}

func (o *Occasion) Key(args Args) string            { return o.occ.Key(args) }
func (o *Occasion) Enabled() bool                   { return o.occ.Enabled() }
func (o *Occasion) Close(ctx context.Context) error { return o.occ.Close(ctx) }

// NewStorage persists resolve results in p as deterministic CBOR.
func NewStorage(p pr.Provider, opts storage.EncodedOptions) (*storage.Encoded[Result], error) {
	codec := c.Limit[Result]{Inner: c.MustCBOR[Result](true), MaxDecode: maxResultSize}
	return storage.NewEncoded[Result](p, codec, opts)
}
