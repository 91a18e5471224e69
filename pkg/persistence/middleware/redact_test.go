package middleware_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/tripchat/pkg/adapters/memory"
	"github.com/aretw0/tripchat/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactMiddleware_MasksDefaults(t *testing.T) {
	store := middleware.NewRedactMiddleware(middleware.DefaultRedactPatterns)(memory.NewStore())
	ctx := context.Background()

	turn := map[string]string{
		"id":      "01928374-1234-7123-8123-123456789012",
		"content": "mail me at jane.doe@example.com, card 4111 1111 1111 1111",
	}
	raw, err := json.Marshal(turn)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "k", raw))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, json.Unmarshal(got, &out), "redaction must keep the record valid JSON")
	assert.Equal(t, "mail me at ***, card ***", out["content"])
	assert.Equal(t, turn["id"], out["id"], "identifiers must survive redaction")
}
