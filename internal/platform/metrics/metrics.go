package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler exposes the Prometheus scrape endpoint. Module-level collectors
// register themselves via promauto in their own metrics packages.
func Handler() http.Handler {
	return promhttp.Handler()
}
