package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/aretw0/tripchat/pkg/ports"
)

// DefaultQuotaBytes mirrors the ~5MB budget of browser local storage.
const DefaultQuotaBytes int64 = 5 << 20

type quotaMiddleware struct {
	next  ports.KeyValueStore
	limit int64

	mu     sync.Mutex
	primed bool
	sizes  map[string]int64
	used   int64
}

// NewQuotaMiddleware bounds the total size (keys + values) of the wrapped store.
// A write that would exceed limit fails with domain.ErrQuotaExceeded and leaves
// the previous value in place. Usage is primed from the store on first access.
func NewQuotaMiddleware(limit int64) Middleware {
	if limit <= 0 {
		limit = DefaultQuotaBytes
	}
	return func(next ports.KeyValueStore) ports.KeyValueStore {
		return &quotaMiddleware{
			next:  next,
			limit: limit,
			sizes: make(map[string]int64),
		}
	}
}

// prime must be called with m.mu held.
func (m *quotaMiddleware) prime(ctx context.Context) error {
	if m.primed {
		return nil
	}
	keys, err := m.next.Keys(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to prime quota usage: %w", err)
	}
	for _, k := range keys {
		v, err := m.next.Get(ctx, k)
		if err != nil {
			if errors.Is(err, domain.ErrKeyNotFound) {
				continue
			}
			return fmt.Errorf("failed to prime quota usage: %w", err)
		}
		size := int64(len(k) + len(v))
		m.sizes[k] = size
		m.used += size
	}
	m.primed = true
	return nil
}

func (m *quotaMiddleware) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.prime(ctx); err != nil {
		return err
	}

	size := int64(len(key) + len(value))
	projected := m.used - m.sizes[key] + size
	if projected > m.limit {
		return fmt.Errorf("%w: %d bytes used, %d requested, limit %d", domain.ErrQuotaExceeded, m.used, size, m.limit)
	}

	if err := m.next.Set(ctx, key, value); err != nil {
		return err
	}
	m.used = projected
	m.sizes[key] = size
	return nil
}

func (m *quotaMiddleware) Get(ctx context.Context, key string) ([]byte, error) {
	return m.next.Get(ctx, key)
}

func (m *quotaMiddleware) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.next.Delete(ctx, key); err != nil {
		return err
	}
	m.used -= m.sizes[key]
	delete(m.sizes, key)
	return nil
}

func (m *quotaMiddleware) Keys(ctx context.Context, prefix string) ([]string, error) {
	return m.next.Keys(ctx, prefix)
}
