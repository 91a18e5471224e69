package middleware_test

import (
	"context"
	"strings"
	"testing"

	"github.com/aretw0/tripchat/pkg/adapters/memory"
	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/aretw0/tripchat/pkg/persistence/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_MetricsCountQuotaRejections(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := middleware.Chain(memory.NewStore(),
		middleware.NewMetricsMiddleware(reg),
		middleware.NewQuotaMiddleware(10),
	)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1")))
	assert.ErrorIs(t, store.Set(ctx, "b", []byte("0123456789")), domain.ErrQuotaExceeded)
	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)

	expected := `
# HELP tripchat_store_operations_total Key-value store operations by operation and result
# TYPE tripchat_store_operations_total counter
tripchat_store_operations_total{op="get",result="miss"} 1
tripchat_store_operations_total{op="set",result="ok"} 1
tripchat_store_operations_total{op="set",result="quota"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "tripchat_store_operations_total"))
}
