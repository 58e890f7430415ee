package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	generationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asksql_generation_requests_total",
			Help: "Total number of SQL generation requests by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	generationLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "asksql_generation_latency_ms",
			Help:    "Language model round-trip latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 20000, 30000},
		},
	)
	guardDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asksql_guard_decisions_total",
			Help: "Total number of safety gate decisions.",
		},
		[]string{"decision"},
	)
	guardRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asksql_guard_rejections_total",
			Help: "Total number of statements rejected by the safety gate, by matched keyword.",
		},
		[]string{"keyword"},
	)
	executionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asksql_execution_requests_total",
			Help: "Total number of query executions by outcome.",
		},
		[]string{"outcome"},
	)
	executionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "asksql_execution_latency_ms",
			Help:    "Query execution latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
		},
	)
	executionRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "asksql_execution_rows",
			Help:    "Number of rows returned per successful execution.",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 10000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		generationRequestsTotal,
		generationLatencyMs,
		guardDecisionsTotal,
		guardRejectionsTotal,
		executionRequestsTotal,
		executionLatencyMs,
		executionRows,
	)
}

func ObserveGeneration(provider, outcome string, elapsed time.Duration) {
	if provider == "" {
		provider = "unknown"
	}
	generationRequestsTotal.WithLabelValues(provider, outcome).Inc()
	generationLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveGuardDecision(accepted bool, keyword string) {
	if accepted {
		guardDecisionsTotal.WithLabelValues("accepted").Inc()
		return
	}
	guardDecisionsTotal.WithLabelValues("rejected").Inc()
	guardRejectionsTotal.WithLabelValues(keyword).Inc()
}

func ObserveExecution(outcome string, rows int, elapsed time.Duration) {
	executionRequestsTotal.WithLabelValues(outcome).Inc()
	executionLatencyMs.Observe(float64(elapsed.Milliseconds()))
	if outcome == "ok" && rows >= 0 {
		executionRows.Observe(float64(rows))
	}
}
