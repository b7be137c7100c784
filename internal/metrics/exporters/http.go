// Package exporters provides HTTP and SSE exporters for metrics.
package exporters

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smazurov/procwatch/internal/logging"
)

type promLogger struct{}

func (promLogger) Println(v ...any) {
	logging.GetLogger("metrics").Warn("Prometheus gather failed", "error", v)
}

// HTTPHandler serves every promauto-registered metric in the Prometheus or
// OpenMetrics text format. Gather errors are logged and the remaining
// metrics are still served.
func HTTPHandler() http.Handler {
	handler := promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog:          promLogger{},
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
	return promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer, handler)
}
