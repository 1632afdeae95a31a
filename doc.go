// Package snapcache memoizes expensive, deterministic build operations
// across compiler runs. An entry stays valid exactly as long as the
// filesystem state it depended on is unchanged; validity comes from a
// snapshot of dependency fingerprints, never from TTLs or build counters.
//
// Components:
//   - snapshot.Manager: creates and re-validates snapshots. One manager is
//     shared by every occasion.
//   - storage.Storage[R]: key -> (snapshot, result). In-memory
//     (storage/memory) or any byte provider through storage.Encoded.
//   - Occasion[I, R]: binds one operation kind (e.g. "resolve") to a
//     storage and the shared manager.
//
// Keys:
//
//	k1:<kind>:<hash>   hash = sha256 over version and length-prefixed fields
//
// Use pattern:
//
//	r, hit, err := occ.UseCache(ctx, in, func(ctx context.Context, in I) (R, error) {
//		return expensive(ctx, in)
//	})
//
// A nil Storage turns the occasion into a transparent pass-through.
package snapcache
