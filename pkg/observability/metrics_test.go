package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/tripchat/pkg/adapters/memory"
	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/aretw0/tripchat/pkg/observability"
	"github.com/aretw0/tripchat/pkg/registry"
	"github.com/aretw0/tripchat/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CacheHooks(t *testing.T) {
	ctx := context.Background()
	promReg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promReg)

	reg := registry.New(memory.NewStore(), registry.WithHooks(metrics.CacheHooks))
	defer reg.Close()
	require.NoError(t, reg.Register(ctx, registry.Policy{
		Namespace: registry.Recommendations, TTL: time.Minute, MaxEntries: 4,
	}))

	_, err := reg.Get(ctx, registry.Recommendations, "", "missing")
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, reg.Set(ctx, registry.Recommendations, "", k, k))
	}
	_, err = reg.Get(ctx, registry.Recommendations, "", "e")
	require.NoError(t, err)

	expected := `
# HELP tripchat_cache_evictions_total Entries evicted for capacity, by namespace
# TYPE tripchat_cache_evictions_total counter
tripchat_cache_evictions_total{namespace="recommendations"} 1
# HELP tripchat_cache_lookups_total Cache lookups by namespace and result (hit, stale, miss)
# TYPE tripchat_cache_lookups_total counter
tripchat_cache_lookups_total{namespace="recommendations",result="hit"} 1
tripchat_cache_lookups_total{namespace="recommendations",result="miss"} 1
tripchat_cache_lookups_total{namespace="recommendations",result="stale"} 0
`
	assert.NoError(t, testutil.GatherAndCompare(promReg, strings.NewReader(expected),
		"tripchat_cache_lookups_total", "tripchat_cache_evictions_total"))
}

func TestMetrics_LifecycleHooks(t *testing.T) {
	ctx := context.Background()
	promReg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promReg)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	reg := registry.New(memory.NewStore())
	defer reg.Close()
	m := session.NewManager(reg, session.WithLifecycleHooks(observability.Combine(
		metrics.LifecycleHooks(),
		observability.LoggingHooks(logger),
	)))
	require.NoError(t, m.Init(ctx))

	_, err := m.TrackTurn(ctx, session.TurnInput{UserID: "u", Role: domain.RoleUser, Content: "hi", Intent: domain.IntentGeneralChat})
	require.NoError(t, err)
	require.NoError(t, m.EndSession(ctx, "u"))
	require.NoError(t, m.Close(ctx))

	expected := `
# HELP tripchat_sessions_active Sessions currently active in this process
# TYPE tripchat_sessions_active gauge
tripchat_sessions_active 0
# HELP tripchat_sessions_total Session lifecycle events by event (started, resumed, ended, timeout)
# TYPE tripchat_sessions_total counter
tripchat_sessions_total{event="ended"} 1
tripchat_sessions_total{event="started"} 1
# HELP tripchat_turns_total Tracked turns by role and phase
# TYPE tripchat_turns_total counter
tripchat_turns_total{phase="general",role="user"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(promReg, strings.NewReader(expected),
		"tripchat_sessions_active", "tripchat_sessions_total", "tripchat_turns_total"))

	out := logs.String()
	assert.Contains(t, out, "session_start")
	assert.Contains(t, out, "reason=ended")
	assert.Contains(t, out, "phase=general")
}

func TestCombine_SkipsNil(t *testing.T) {
	calls := 0
	hooks := observability.Combine(
		domain.LifecycleHooks{},
		domain.LifecycleHooks{OnTurn: func(context.Context, *domain.TurnEvent) { calls++ }},
		domain.LifecycleHooks{OnTurn: func(context.Context, *domain.TurnEvent) { calls++ }},
	)
	assert.Nil(t, hooks.OnSessionStart)
	hooks.OnTurn(context.Background(), &domain.TurnEvent{})
	assert.Equal(t, 2, calls)
}
