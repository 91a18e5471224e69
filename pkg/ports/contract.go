package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunKeyValueStoreContract runs a suite of tests to verify that a KeyValueStore
// implementation adheres to the defined interface contract.
func RunKeyValueStoreContract(t *testing.T, store KeyValueStore) {
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405") + ":"

	t.Run("Set and Get", func(t *testing.T) {
		key := prefix + "greeting"
		require.NoError(t, store.Set(ctx, key, []byte(`{"hello":"world"}`)))

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.JSONEq(t, `{"hello":"world"}`, string(got))
	})

	t.Run("Overwrite", func(t *testing.T) {
		key := prefix + "counter"
		require.NoError(t, store.Set(ctx, key, []byte("1")))
		require.NoError(t, store.Set(ctx, key, []byte("2")))

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "2", string(got))
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, prefix+"missing")
		assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	})

	t.Run("Returned value is isolated", func(t *testing.T) {
		key := prefix + "isolated"
		require.NoError(t, store.Set(ctx, key, []byte("abc")))

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		got[0] = 'z'

		again, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "abc", string(again))
	})

	t.Run("Delete", func(t *testing.T) {
		key := prefix + "doomed"
		require.NoError(t, store.Set(ctx, key, []byte("x")))
		require.NoError(t, store.Delete(ctx, key))

		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, domain.ErrKeyNotFound, "Get after Delete should return ErrKeyNotFound")

		assert.NoError(t, store.Delete(ctx, key), "deleting a missing key is not an error")
	})

	t.Run("Keys by prefix", func(t *testing.T) {
		scoped := prefix + "ns:alice:"
		other := prefix + "ns:bob:"
		require.NoError(t, store.Set(ctx, scoped+"a", []byte("1")))
		require.NoError(t, store.Set(ctx, scoped+"b", []byte("2")))
		require.NoError(t, store.Set(ctx, other+"a", []byte("3")))

		defer func() {
			_ = store.Delete(ctx, scoped+"a")
			_ = store.Delete(ctx, scoped+"b")
			_ = store.Delete(ctx, other+"a")
		}()

		keys, err := store.Keys(ctx, scoped)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{scoped + "a", scoped + "b"}, keys)

		all, err := store.Keys(ctx, "")
		require.NoError(t, err)
		assert.Contains(t, all, other+"a")
	})
}
