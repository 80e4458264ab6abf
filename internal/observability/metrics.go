// Package observability exposes the service's Prometheus instrumentation.
package observability

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FormVersionBumps counts new form index versions created by the
	// propagation engine.
	FormVersionBumps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formhub_form_version_bumps_total",
		Help: "Number of form index versions created.",
	})

	// PageSnapshots counts page version snapshots, labelled by whether the
	// snapshot moved an existing field set or started empty.
	PageSnapshots = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formhub_page_snapshots_total",
		Help: "Number of page versions created.",
	}, []string{"bootstrap"})

	// DatasetValuesMaterialized counts catalog values written during dataset
	// materialization runs.
	DatasetValuesMaterialized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formhub_dataset_values_materialized_total",
		Help: "Number of dataset values inserted by materialization.",
	})

	// ExportRows counts flattened response rows rendered by the export layer.
	ExportRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formhub_export_rows_total",
		Help: "Number of flattened response rows exported.",
	})
)

// RegisterMetricsEndpoint exposes Prometheus metrics on /metrics.
func RegisterMetricsEndpoint(router chi.Router) {
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
}
