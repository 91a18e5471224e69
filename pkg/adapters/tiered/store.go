// Package tiered layers an in-process ristretto cache over a durable
// ports.KeyValueStore. Reads check the L1 first and fall back to the durable
// store; writes go to the durable store first, then to the L1.
package tiered

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/aretw0/tripchat/pkg/ports"
	"github.com/dgraph-io/ristretto/v2"
)

// Store is a two-level KeyValueStore. It is safe for concurrent use.
type Store struct {
	l1   *ristretto.Cache[string, []byte]
	next ports.KeyValueStore
	ttl  time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithL1TTL bounds how long a value may be served from the L1 without
// consulting the durable store. Zero keeps values until evicted.
func WithL1TTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// New creates a tiered store. maxEntries bounds the L1 (each entry has a cost of 1).
func New(next ports.KeyValueStore, maxEntries int64, opts ...Option) (*Store, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	s := &Store{l1: rc, next: next}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get checks the L1, then the durable store. A durable hit is promoted into the L1.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := s.l1.Get(key); ok {
		return bytes.Clone(v), nil
	}
	v, err := s.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	s.l1.SetWithTTL(key, bytes.Clone(v), 1, s.ttl)
	return v, nil
}

// Set writes through to the durable store, then the L1. The L1 is only
// populated when the durable write succeeded.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.next.Set(ctx, key, value); err != nil {
		s.l1.Del(key)
		return err
	}
	s.l1.SetWithTTL(key, bytes.Clone(value), 1, s.ttl)
	s.l1.Wait()
	return nil
}

// Delete removes the key from both layers.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.l1.Del(key)
	err := s.next.Delete(ctx, key)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Keys is answered by the durable store, which is the source of truth.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.next.Keys(ctx, prefix)
}

// Close releases the L1.
func (s *Store) Close() {
	s.l1.Close()
}
