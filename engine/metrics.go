package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by an Engine.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Initializations   *prometheus.CounterVec
}

// NewMetrics creates the engine collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthvault_engine_operations_total",
				Help: "Total number of engine operations by outcome",
			},
			[]string{"op", "status"},
		),
		OperationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "healthvault_engine_operation_duration_seconds",
				Help:    "Engine operation duration in seconds",
				Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1.0},
			},
			[]string{"op"},
		),
		Initializations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "healthvault_engine_initializations_total",
				Help: "Total number of backend setups by backend and outcome",
			},
			[]string{"backend", "status"},
		),
	}
}

func (m *Metrics) recordOperation(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, Kind(err)).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) recordInitialization(backend string, err error) {
	if m == nil {
		return
	}
	m.Initializations.WithLabelValues(backend, Kind(err)).Inc()
}
