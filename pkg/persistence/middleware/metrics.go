package middleware

import (
	"context"
	"errors"

	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/aretw0/tripchat/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
)

type metricsMiddleware struct {
	next  ports.KeyValueStore
	ops   *prometheus.CounterVec
	bytes prometheus.Histogram
}

// NewMetricsMiddleware counts store operations by op and result and observes
// written value sizes. Collectors are registered on reg.
func NewMetricsMiddleware(reg prometheus.Registerer) Middleware {
	ops := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripchat_store_operations_total",
			Help: "Key-value store operations by operation and result",
		},
		[]string{"op", "result"},
	)
	size := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tripchat_store_value_bytes",
		Help:    "Size of values written to the key-value store",
		Buckets: prometheus.ExponentialBuckets(64, 4, 8),
	})
	reg.MustRegister(ops, size)

	return func(next ports.KeyValueStore) ports.KeyValueStore {
		return &metricsMiddleware{next: next, ops: ops, bytes: size}
	}
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrKeyNotFound):
		return "miss"
	case errors.Is(err, domain.ErrQuotaExceeded):
		return "quota"
	default:
		return "error"
	}
}

func (m *metricsMiddleware) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := m.next.Get(ctx, key)
	m.ops.WithLabelValues("get", result(err)).Inc()
	return v, err
}

func (m *metricsMiddleware) Set(ctx context.Context, key string, value []byte) error {
	err := m.next.Set(ctx, key, value)
	m.ops.WithLabelValues("set", result(err)).Inc()
	if err == nil {
		m.bytes.Observe(float64(len(value)))
	}
	return err
}

func (m *metricsMiddleware) Delete(ctx context.Context, key string) error {
	err := m.next.Delete(ctx, key)
	m.ops.WithLabelValues("delete", result(err)).Inc()
	return err
}

func (m *metricsMiddleware) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := m.next.Keys(ctx, prefix)
	m.ops.WithLabelValues("keys", result(err)).Inc()
	return keys, err
}
