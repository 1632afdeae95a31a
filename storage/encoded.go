package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	c "github.com/unkn0wn-root/snapcache/codec"
	"github.com/unkn0wn-root/snapcache/internal/wire"
	pr "github.com/unkn0wn-root/snapcache/provider"
	"github.com/unkn0wn-root/snapcache/snapshot"
)

var (
	// ErrKeyMismatch means the frame stored under a key was written for a
	// different key (hash collision in the provider, or a foreign writer).
	ErrKeyMismatch = errors.New("storage: stored key does not match")
	// ErrRejected is returned by Set when the provider dropped the write
	// under pressure. The entry is simply not cached.
	ErrRejected = errors.New("storage: write rejected by provider")
)

// SetCostFunc computes the provider cost of a framed entry.
type SetCostFunc func(key string, raw []byte) int64

// EncodedOptions tune an Encoded storage.
type EncodedOptions struct {
	TTL  time.Duration // <=0: no expiry
	Cost SetCostFunc   // nil => len(raw)
	// OnSelfHeal is called after an unreadable entry was deleted.
	// err wraps wire.ErrCorrupt, ErrKeyMismatch or the codec error.
	OnSelfHeal func(key string, err error)
}

// Encoded persists entries in a byte provider. Each value is one frame
// holding the key, the binary snapshot and the codec payload.
type Encoded[R any] struct {
	p      pr.Provider
	codec  c.Codec[R]
	ttl    time.Duration
	cost   SetCostFunc
	onHeal func(string, error)
}

var _ Storage[int] = (*Encoded[int])(nil)

func NewEncoded[R any](p pr.Provider, codec c.Codec[R], opts EncodedOptions) (*Encoded[R], error) {
	if p == nil {
		return nil, errors.New("storage: provider is required")
	}
	if codec == nil {
		return nil, errors.New("storage: codec is required")
	}
	s := &Encoded[R]{
		p:      p,
		codec:  codec,
		ttl:    opts.TTL,
		cost:   opts.Cost,
		onHeal: opts.OnSelfHeal,
	}
	if s.cost == nil {
		s.cost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
	}
	if s.onHeal == nil {
		s.onHeal = func(string, error) {}
	}
	return s, nil
}

func (s *Encoded[R]) Get(ctx context.Context, key string) (Entry[R], bool, error) {
	var zero Entry[R]
	raw, ok, err := s.p.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	e, err := s.decode(key, raw)
	if err != nil {
		_ = s.p.Del(ctx, key) // self-heal
		s.onHeal(key, err)
		return zero, false, nil
	}
	return e, true, nil
}

func (s *Encoded[R]) decode(key string, raw []byte) (Entry[R], error) {
	var zero Entry[R]
	storedKey, snapb, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		return zero, err
	}
	if storedKey != key {
		return zero, ErrKeyMismatch
	}
	snap, err := snapshot.Decode(snapb)
	if err != nil {
		return zero, err
	}
	r, err := s.codec.Decode(payload)
	if err != nil {
		return zero, fmt.Errorf("storage: decode result: %w", err)
	}
	return Entry[R]{Snapshot: snap, Result: r}, nil
}

func (s *Encoded[R]) Set(ctx context.Context, key string, e Entry[R]) error {
	snapb, err := e.Snapshot.MarshalBinary()
	if err != nil {
		return fmt.Errorf("storage: encode snapshot: %w", err)
	}
	payload, err := s.codec.Encode(e.Result)
	if err != nil {
		return fmt.Errorf("storage: encode result: %w", err)
	}
	raw, err := wire.EncodeEntry(key, snapb, payload)
	if err != nil {
		return err
	}
	ok, err := s.p.Set(ctx, key, raw, s.cost(key, raw), s.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRejected
	}
	return nil
}

func (s *Encoded[R]) Close(ctx context.Context) error { return s.p.Close(ctx) }
