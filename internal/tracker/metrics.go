package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the tracker module.
type Metrics struct {
	Transitions   *prometheus.CounterVec
	FindingsOpen  prometheus.Gauge
	OverridesUsed prometheus.Counter
}

// NewMetrics registers all tracker module metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "creaturegrc_implementation_transitions_total",
			Help: "Total implementation status transitions by target status",
		}, []string{"to"}),
		FindingsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "creaturegrc_findings_open",
			Help: "Number of findings currently open or in progress",
		}),
		OverridesUsed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "creaturegrc_not_applicable_overrides_total",
			Help: "Total transitions that crossed the not_applicable fence",
		}),
	}
}
