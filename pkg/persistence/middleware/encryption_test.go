package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/tripchat/pkg/adapters/memory"
	"github.com/aretw0/tripchat/pkg/persistence/middleware"
	"github.com/aretw0/tripchat/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ports.RunKeyValueStoreContract(t, mw(memory.NewStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	ctx := context.Background()

	plain := []byte(`{"destination":"Lisbon"}`)
	require.NoError(t, secure.Set(ctx, "conversation-session:alice:current", plain))

	raw, err := underlying.Get(ctx, "conversation-session:alice:current")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Lisbon", "value must be encrypted at rest")

	got, err := secure.Get(ctx, "conversation-session:alice:current")
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	secureOld := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	require.NoError(t, secureOld.Set(ctx, "k", []byte("encrypted-with-old-key")))

	secureNew := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)

	got, err := secureNew.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "encrypted-with-old-key", string(got))

	// Re-save with the new key: the old-only middleware can no longer read it.
	require.NoError(t, secureNew.Set(ctx, "k", []byte("encrypted-with-new-key")))
	_, err = secureOld.Get(ctx, "k")
	assert.Error(t, err)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	})
}
