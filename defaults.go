package snapcache

import "github.com/unkn0wn-root/snapcache/snapshot"

const defaultKeyVersion = "1"

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func orSelector(s snapshot.Selector) snapshot.Selector {
	if s == nil {
		return snapshot.ResolveSelector
	}
	return s
}
