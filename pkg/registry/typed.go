package registry

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aretw0/tripchat/pkg/domain"
)

// GetAs decodes the value under key into T. A value that no longer decodes
// is deleted and reported as domain.ErrKeyNotFound.
func GetAs[T any](ctx context.Context, r *Registry, ns NamespaceID, userID, key string) (T, error) {
	var out T
	raw, err := r.Get(ctx, ns, userID, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		r.logger.Warn("dropping undecodable entry", "namespace", ns, "key", key, "err", err)
		_ = r.Delete(ctx, ns, userID, key)
		var zero T
		return zero, domain.ErrKeyNotFound
	}
	return out, nil
}

// SetAs stores value under key.
func SetAs[T any](ctx context.Context, r *Registry, ns NamespaceID, userID, key string, value T) error {
	return r.Set(ctx, ns, userID, key, value)
}

// GetOrFetch returns the cached value under key or loads it with fetch. Stale
// values are returned while fetch refreshes them in the background.
func GetOrFetch[T any](ctx context.Context, r *Registry, ns NamespaceID, userID, key string, fetch func(context.Context) (T, error)) (T, error) {
	var out T
	space, err := r.space(ns)
	if err != nil {
		return out, err
	}

	k, err := space.cacheKey(userID, key)
	if err != nil {
		return out, err
	}
	raw, err := space.cache.GetOrFetch(ctx, k, func(ctx context.Context) (json.RawMessage, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		_ = r.Delete(ctx, ns, userID, key)
		return out, errors.Join(domain.ErrKeyNotFound, err)
	}
	return out, nil
}
