// Package monitoring exposes Prometheus metrics for the backtest
// services.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service-level counters and histograms. Each service
// process owns one instance with its own registry so tests never clash
// on the global default.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	BarsProcessed   prometheus.Counter
	TradesRecorded  prometheus.Counter
	OrdersSubmitted prometheus.Counter
	OrdersRejected  prometheus.Counter
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pbh",
			Name:      "runs_total",
			Help:      "Backtest runs by outcome.",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pbh",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a single-symbol backtest run.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		BarsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pbh",
			Name:      "bars_processed_total",
			Help:      "Bars fed through the strategy state machine.",
		}),
		TradesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pbh",
			Name:      "trades_recorded_total",
			Help:      "Closed trade records across all runs.",
		}),
		OrdersSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pbh",
			Name:      "orders_submitted_total",
			Help:      "Orders accepted by the broker.",
		}),
		OrdersRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pbh",
			Name:      "orders_rejected_total",
			Help:      "Orders refused by the broker.",
		}),
	}
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(d time.Duration, bars, trades int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
	m.BarsProcessed.Add(float64(bars))
	m.TradesRecorded.Add(float64(trades))
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
