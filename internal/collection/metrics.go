package collection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the collection module.
type Metrics struct {
	Runs        *prometheus.CounterVec
	RunDuration prometheus.Histogram
	Payloads    *prometheus.CounterVec
}

// NewMetrics registers all collection module metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "creaturegrc_collection_runs_total",
			Help: "Total collection job runs by outcome",
		}, []string{"status", "source_system"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "creaturegrc_collection_run_duration_seconds",
			Help:    "Duration of collection job runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		Payloads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "creaturegrc_collection_payloads_total",
			Help: "Total payloads produced by collection runs, by submission outcome",
		}, []string{"outcome"}),
	}
}
