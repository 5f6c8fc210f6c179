package ledger

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/danieldelarosaginzalez-wq/ACSOLUTION-sub000/internal/domain"
)

// Metrics métricas Prometheus del ledger. Un *Metrics nil no registra nada.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	retries    *prometheus.CounterVec
}

// NewMetrics registra las métricas en reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inventory_ledger",
			Name:      "operations_total",
			Help:      "Operaciones del ledger por tipo y resultado.",
		}, []string{"operation", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "inventory_ledger",
			Name:      "operation_duration_seconds",
			Help:      "Duración de las operaciones del ledger.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inventory_ledger",
			Name:      "write_conflict_retries_total",
			Help:      "Reintentos por conflicto de escritura concurrente.",
		}, []string{"operation"}),
	}
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome(err)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) retry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrTryAgain):
		return "try_again"
	default:
		return "error"
	}
}
