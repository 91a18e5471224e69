package middleware_test

import (
	"context"
	"strings"
	"testing"

	"github.com/aretw0/tripchat/pkg/adapters/memory"
	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/aretw0/tripchat/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaMiddleware_RejectsOverflow(t *testing.T) {
	underlying := memory.NewStore()
	store := middleware.NewQuotaMiddleware(20)(underlying)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("123456789"))) // 10 bytes
	err := store.Set(ctx, "b", []byte(strings.Repeat("x", 10)))  // 11 bytes, total 21
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)

	_, err = underlying.Get(ctx, "b")
	assert.ErrorIs(t, err, domain.ErrKeyNotFound, "rejected write must not reach the store")
}

func TestQuotaMiddleware_OverwriteAndDeleteReleaseSpace(t *testing.T) {
	store := middleware.NewQuotaMiddleware(20)(memory.NewStore())
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte(strings.Repeat("x", 15))))
	// Overwriting the same key only counts the delta.
	require.NoError(t, store.Set(ctx, "a", []byte(strings.Repeat("y", 19))))

	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Set(ctx, "b", []byte(strings.Repeat("z", 19))))
}

func TestQuotaMiddleware_PrimesFromExistingData(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, underlying.Set(ctx, "old", []byte(strings.Repeat("x", 17)))) // 20 bytes

	store := middleware.NewQuotaMiddleware(25)(underlying)
	assert.ErrorIs(t, store.Set(ctx, "new", []byte("xxx")), domain.ErrQuotaExceeded)
}
