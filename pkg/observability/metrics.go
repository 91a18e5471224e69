package observability

import (
	"context"

	"github.com/aretw0/tripchat/pkg/cache"
	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/aretw0/tripchat/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of one process.
type Metrics struct {
	cacheLookups    *prometheus.CounterVec
	cacheEvictions  *prometheus.CounterVec
	refreshFailures *prometheus.CounterVec
	sessions        *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	turns           *prometheus.CounterVec
	sessionLength   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripchat_cache_lookups_total",
				Help: "Cache lookups by namespace and result (hit, stale, miss)",
			},
			[]string{"namespace", "result"},
		),
		cacheEvictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripchat_cache_evictions_total",
				Help: "Entries evicted for capacity, by namespace",
			},
			[]string{"namespace"},
		),
		refreshFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripchat_cache_refresh_failures_total",
				Help: "Background refreshes that failed, by namespace",
			},
			[]string{"namespace"},
		),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripchat_sessions_total",
				Help: "Session lifecycle events by event (started, resumed, ended, timeout)",
			},
			[]string{"event"},
		),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tripchat_sessions_active",
			Help: "Sessions currently active in this process",
		}),
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripchat_turns_total",
				Help: "Tracked turns by role and phase",
			},
			[]string{"role", "phase"},
		),
		sessionLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tripchat_session_messages",
			Help:    "Messages per ended session",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		}),
	}
	reg.MustRegister(
		m.cacheLookups, m.cacheEvictions, m.refreshFailures,
		m.sessions, m.activeSessions, m.turns, m.sessionLength,
	)
	return m
}

// CacheHooks returns hooks recording lookups of namespace ns.
func (m *Metrics) CacheHooks(ns registry.NamespaceID) cache.Hooks {
	label := string(ns)
	hit := m.cacheLookups.WithLabelValues(label, "hit")
	stale := m.cacheLookups.WithLabelValues(label, "stale")
	miss := m.cacheLookups.WithLabelValues(label, "miss")
	evictions := m.cacheEvictions.WithLabelValues(label)
	failures := m.refreshFailures.WithLabelValues(label)

	return cache.Hooks{
		OnHit:          func(string) { hit.Inc() },
		OnStale:        func(string) { stale.Inc() },
		OnMiss:         func(string) { miss.Inc() },
		OnEvict:        func(n int) { evictions.Add(float64(n)) },
		OnRefreshError: func(string, error) { failures.Inc() },
	}
}

// LifecycleHooks returns hooks recording session events.
func (m *Metrics) LifecycleHooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionStart: func(_ context.Context, e *domain.SessionEvent) {
			event := "started"
			if e.Resumed {
				event = "resumed"
			}
			m.sessions.WithLabelValues(event).Inc()
			m.activeSessions.Inc()
		},
		OnSessionEnd: func(_ context.Context, e *domain.SessionEvent) {
			event := "ended"
			if e.Reason == "timeout" {
				event = "timeout"
			}
			m.sessions.WithLabelValues(event).Inc()
			m.activeSessions.Dec()
			m.sessionLength.Observe(float64(e.TotalMessages))
		},
		OnTurn: func(_ context.Context, e *domain.TurnEvent) {
			m.turns.WithLabelValues(string(e.Role), string(e.Phase)).Inc()
		},
	}
}
