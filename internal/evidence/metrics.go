package evidence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the evidence module.
type Metrics struct {
	Submissions *prometheus.CounterVec
	Reviews     *prometheus.CounterVec
}

// NewMetrics registers all evidence module metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "creaturegrc_evidence_submissions_total",
			Help: "Total evidence submissions by outcome (created or deduplicated)",
		}, []string{"outcome", "source_system"}),
		Reviews: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "creaturegrc_evidence_reviews_total",
			Help: "Total evidence reviews by resulting status",
		}, []string{"status"}),
	}
}
