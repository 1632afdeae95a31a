// Package sloghooks logs occasion events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/snapcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	HitEvery  uint64
	MissEvery uint64
	// Optional kind redactor. nil logs kinds as is; Redacted hashes them.
	Redact func(string) string
}

// Redacted replaces a value with a SHA-256 prefix.
func Redacted(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr  atomic.Uint64
	missCtr atomic.Uint64
}

var _ snapcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) kind(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return k
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Hit(kind string) {
	if h.l == nil || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("snapcache.hit", "kind", h.kind(kind))
}

func (h *Hooks) Miss(kind, reason string) {
	if h.l == nil || !sample(h.opts.MissEvery, &h.missCtr) {
		return
	}
	h.l.Debug("snapcache.miss",
		"kind", h.kind(kind),
		"reason", reason)
}

func (h *Hooks) Bypass(kind string) {}

func (h *Hooks) Coalesced(kind string) {
	if h.l == nil {
		return
	}
	h.l.Debug("snapcache.coalesced", "kind", h.kind(kind))
}

func (h *Hooks) StorageError(kind, op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("snapcache.storage_error",
		"kind", h.kind(kind),
		"op", op,
		"err", err)
}

func (h *Hooks) SnapshotError(kind string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("snapcache.snapshot_error",
		"kind", h.kind(kind),
		"err", err)
}
