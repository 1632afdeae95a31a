package snapcache

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/snapcache/internal/util"
	"github.com/unkn0wn-root/snapcache/snapshot"
	"github.com/unkn0wn-root/snapcache/storage"
)

type occasion[I, R any] struct {
	kind    string
	version string
	store   storage.Storage[R]
	snaps   *snapshot.Manager
	sel     snapshot.Selector
	fields  func(I) []string
	deps    func(I, R) []string
	clone   func(R) R
	log     Logger
	hooks   Hooks
	sf      *singleflight.Group // nil when disabled
	degrade bool
}

type outcome[R any] struct {
	r   R
	hit bool
}

func newOccasion[I, R any](opts Options[I, R]) (*occasion[I, R], error) {
	if opts.Kind == "" {
		return nil, fmt.Errorf("snapcache: kind is required")
	}
	if opts.KeyFields == nil {
		return nil, fmt.Errorf("snapcache: key fields are required")
	}
	if opts.Storage != nil && opts.Snapshots == nil {
		return nil, fmt.Errorf("snapcache: snapshot manager is required with storage")
	}

	o := &occasion[I, R]{
		kind:    opts.Kind,
		store:   opts.Storage,
		snaps:   opts.Snapshots,
		sel:     orSelector(opts.Select),
		fields:  opts.KeyFields,
		deps:    opts.Dependencies,
		clone:   opts.Clone,
		degrade: opts.DegradeOnSnapshotError,
	}

	// defaults
	o.version = coalesce(opts.KeyVersion, defaultKeyVersion)
	o.log = opts.Logger
	if o.log == nil {
		o.log = NopLogger{}
	}
	o.hooks = opts.Hooks
	if o.hooks == nil {
		o.hooks = NopHooks{}
	}
	if o.deps == nil {
		o.deps = func(I, R) []string { return nil }
	}
	if o.clone == nil {
		o.clone = func(r R) R { return r }
	}
	if !opts.DisableSingleFlight {
		o.sf = new(singleflight.Group)
	}
	return o, nil
}

func (o *occasion[I, R]) Enabled() bool { return o.store != nil }

func (o *occasion[I, R]) Close(ctx context.Context) error {
	if o.store != nil {
		return o.store.Close(ctx)
	}
	return nil
}

func (o *occasion[I, R]) Key(in I) string {
	return util.DeriveKey(o.kind, o.version, o.fields(in))
}

func (o *occasion[I, R]) UseCache(ctx context.Context, in I, gen Generator[I, R]) (R, bool, error) {
	if o.store == nil {
		o.hooks.Bypass(o.kind)
		r, err := gen(ctx, in)
		return r, false, err
	}
	key := o.Key(in)
	if o.sf == nil {
		return o.run(ctx, key, in, gen)
	}

	// The leader keeps the generator's value; waiters copy from a separate
	// clone nobody hands out.
	var (
		led  bool
		mine R
	)
	ch := o.sf.DoChan(key, func() (v any, err error) {
		led = true
		defer func() {
			if p := recover(); p != nil {
				err = &PanicError{Value: p, Stack: debug.Stack()}
				o.log.Error("generator panicked", Fields{"kind": o.kind, "key": key, "panic": p})
			}
		}()
		r, hit, err := o.run(ctx, key, in, gen)
		mine = r
		return outcome[R]{r: o.clone(r), hit: hit}, err
	})

	var zero R
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		var perr *PanicError
		if led {
			if errors.As(res.Err, &perr) {
				panic(perr)
			}
			out, _ := res.Val.(outcome[R])
			return mine, out.hit, res.Err
		}
		o.hooks.Coalesced(o.kind)
		if res.Err != nil {
			if isCtxErr(res.Err) && ctx.Err() == nil {
				// the leader was cancelled, not us
				return o.run(ctx, key, in, gen)
			}
			return zero, false, res.Err
		}
		out := res.Val.(outcome[R])
		return o.clone(out.r), out.hit, nil
	}
}

func (o *occasion[I, R]) run(ctx context.Context, key string, in I, gen Generator[I, R]) (R, bool, error) {
	var zero R

	e, ok, err := o.store.Get(ctx, key)
	switch {
	case err != nil:
		o.log.Warn("storage get failed; regenerating", Fields{"kind": o.kind, "key": key, "err": err})
		o.hooks.StorageError(o.kind, "get", err)
		o.hooks.Miss(o.kind, MissStorageError)
	case !ok:
		o.hooks.Miss(o.kind, MissAbsent)
	default:
		changed, verr := o.snaps.Diff(ctx, e.Snapshot)
		switch {
		case verr != nil:
			o.log.Debug("snapshot validation failed; regenerating", Fields{"kind": o.kind, "key": key, "path": changed, "err": verr})
			o.hooks.Miss(o.kind, MissValidateError)
		case changed != "":
			o.log.Debug("snapshot stale", Fields{"kind": o.kind, "key": key, "path": changed})
			o.hooks.Miss(o.kind, MissStale)
		default:
			o.hooks.Hit(o.kind)
			return o.clone(e.Result), true, nil
		}
	}

	r, err := gen(ctx, in)
	if err != nil {
		return zero, false, err
	}

	paths := o.deps(in, r)
	snap, err := o.snaps.Create(ctx, paths, o.sel)
	if err != nil {
		serr := &SnapshotError{Kind: o.kind, Key: key, Paths: paths, Err: err}
		o.log.Warn("snapshot creation failed", Fields{"kind": o.kind, "key": key, "err": err})
		o.hooks.SnapshotError(o.kind, serr)
		if o.degrade {
			return r, false, nil
		}
		return zero, false, serr
	}

	if err := o.store.Set(ctx, key, storage.Entry[R]{Snapshot: snap, Result: o.clone(r)}); err != nil {
		if errors.Is(err, storage.ErrRejected) {
			o.log.Debug("storage rejected write", Fields{"kind": o.kind, "key": key})
		} else {
			o.log.Warn("storage set failed", Fields{"kind": o.kind, "key": key, "err": err})
			o.hooks.StorageError(o.kind, "set", err)
		}
	}
	return r, false, nil
}

func isCtxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
