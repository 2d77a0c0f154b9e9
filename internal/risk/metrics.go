package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the risk module.
type Metrics struct {
	Recomputations prometheus.Counter
	ResidualScore  *prometheus.GaugeVec
}

// NewMetrics registers all risk module metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Recomputations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "creaturegrc_risk_recomputations_total",
			Help: "Total residual score recomputations",
		}),
		ResidualScore: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "creaturegrc_risk_residual_score",
			Help: "Current residual score per risk",
		}, []string{"risk"}),
	}
}
