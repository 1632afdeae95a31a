// Package memory is the in-process reference Storage. Entries live for the
// lifetime of the value and are never evicted.
package memory

import (
	"context"
	"sync"

	"github.com/unkn0wn-root/snapcache/storage"
)

type Store[R any] struct {
	mu    sync.RWMutex
	m     map[string]storage.Entry[R]
	clone func(R) R
}

var _ storage.Storage[int] = (*Store[int])(nil)

type Option[R any] func(*Store[R])

// WithClone copies results on the way in and out, for result types that
// share memory (slices, maps, pointers) with the caller.
func WithClone[R any](clone func(R) R) Option[R] {
	return func(s *Store[R]) { s.clone = clone }
}

func New[R any](opts ...Option[R]) *Store[R] {
	s := &Store[R]{m: make(map[string]storage.Entry[R])}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store[R]) Get(_ context.Context, key string) (storage.Entry[R], bool, error) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if ok && s.clone != nil {
		e.Result = s.clone(e.Result)
	}
	return e, ok, nil
}

func (s *Store[R]) Set(_ context.Context, key string, e storage.Entry[R]) error {
	if s.clone != nil {
		e.Result = s.clone(e.Result)
	}
	s.mu.Lock()
	s.m[key] = e
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored entries.
func (s *Store[R]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Delete drops key. Not part of storage.Storage.
func (s *Store[R]) Delete(key string) {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

func (s *Store[R]) Close(context.Context) error {
	s.mu.Lock()
	clear(s.m)
	s.mu.Unlock()
	return nil
}
