package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reconquest/pkg/log"
)

// Collectors bundles the Prometheus gauges/counters the exporter
// registers, grounded on the gauge/counter registration pattern seen
// in jordigilh-kubernaut's pkg/infrastructure/metrics. This is purely
// additive instrumentation layered on top of the karma/log-based
// structured summary; nothing in the core depends on it being served.
type Collectors struct {
	QueueSize       prometheus.Gauge
	HealthScore     prometheus.Gauge
	PagesProcessed  prometheus.Counter
	PagesFailed     prometheus.Counter
	Retries         prometheus.Counter
}

// NewCollectors registers a fresh set of collectors against a
// dedicated registry (never the global default, so repeated exports in
// the same process — as in tests — don't panic on duplicate
// registration).
func NewCollectors() (*Collectors, *prometheus.Registry) {
	reg := prometheus.NewRegistry()

	c := &Collectors{
		QueueSize: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "exporter_queue_size",
			Help: "Number of pending+processing items in the download queue.",
		}),
		HealthScore: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "exporter_health_score",
			Help: "Derived health score in [0,1] from current monitoring alerts.",
		}),
		PagesProcessed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "exporter_pages_processed_total",
			Help: "Total number of pages successfully exported.",
		}),
		PagesFailed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "exporter_pages_failed_total",
			Help: "Total number of pages that failed export terminally.",
		}),
		Retries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "exporter_queue_retries_total",
			Help: "Total number of page processing retries.",
		}),
	}

	return c, reg
}

// Serve starts an HTTP server exposing reg's collectors at /metrics on
// addr. Intended to run in its own goroutine; errors are logged, not
// fatal, since metrics export is optional (SPEC_FULL.md §15).
func Serve(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	log.Infof(nil, "serving metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorf(err, "metrics server stopped")
	}
}
