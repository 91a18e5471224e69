package ports

import "context"

// KeyValueStore is the durable storage boundary. All namespaces and users
// share one store; isolation is achieved purely through key prefixes.
// Concurrent writes to the same key are last-write-wins.
type KeyValueStore interface {
	// Get returns the raw value for key.
	// Returns domain.ErrKeyNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set creates or overwrites the value for key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns every stored key starting with prefix. An empty prefix
	// lists the whole store.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
