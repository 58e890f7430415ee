package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asksql_http_requests_total",
			Help: "HTTP requests served, by mux route and status.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "asksql_http_request_duration_seconds",
			Help:    "HTTP request latency by mux route.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route", "status"},
	)

	schemaRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asksql_schema_refresh_total",
			Help: "Schema description refreshes by outcome.",
		},
		[]string{"outcome"},
	)
	schemaTables = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "asksql_schema_tables",
			Help: "Number of tables in the cached schema description.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDurationSeconds, schemaRefreshTotal, schemaTables)
}

// ObserveSchemaRefresh records a refresh attempt. tables is ignored on failure
// because the previous description stays in place.
func ObserveSchemaRefresh(err error, tables int) {
	if err != nil {
		schemaRefreshTotal.WithLabelValues("error").Inc()
		return
	}
	schemaRefreshTotal.WithLabelValues("ok").Inc()
	schemaTables.Set(float64(tables))
}
