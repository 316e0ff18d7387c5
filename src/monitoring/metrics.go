// Package monitoring exposes Prometheus metrics for the observer.
package monitoring

import (
	"net/http"
	"time"

	"series-observer/src/helpers"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "series_observer"

// Metrics owns its registry so several servers can live in one process.
type Metrics struct {
	Registry *prometheus.Registry

	// OperationsTotal counts engine operations by kind and outcome.
	OperationsTotal *prometheus.CounterVec

	// OperationDuration measures engine operations in seconds.
	OperationDuration *prometheus.HistogramVec

	// PointsProcessed observes input sizes.
	PointsProcessed *prometheus.HistogramVec

	// SessionsActive tracks sessions held in memory.
	SessionsActive prometheus.Gauge

	// WebsocketClients tracks connected websocket clients.
	WebsocketClients prometheus.Gauge
}

// -----------------------------------------------------------------------------

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of engine operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of engine operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		PointsProcessed: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "points_processed",
				Help:      "Distribution of input sizes in points",
				Buckets:   prometheus.ExponentialBuckets(10, 10, 6),
			},
			[]string{"operation"},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Sessions currently held in memory",
			},
		),
		WebsocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_clients",
				Help:      "Connected websocket clients",
			},
		),
	}
}

// -----------------------------------------------------------------------------

// Observe records one operation. status is derived from err.
func (m *Metrics) Observe(operation string, points int, started time.Time, err error) {
	m.OperationsTotal.WithLabelValues(operation, helpers.ErrorKind(err)).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	if points > 0 {
		m.PointsProcessed.WithLabelValues(operation).Observe(float64(points))
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
