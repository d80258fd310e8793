package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	modelAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querylens_model_attempts_total",
			Help: "Total number of model completion attempts by model and outcome.",
		},
		[]string{"task", "model", "outcome"},
	)
	modelLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querylens_model_latency_seconds",
			Help:    "Latency of individual model completion attempts.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"task", "model"},
	)
	pipelineFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querylens_pipeline_failures_total",
			Help: "Total number of pipeline failures by stage.",
		},
		[]string{"stage"},
	)
	queryDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querylens_query_duration_ms",
			Help:    "Data source query execution latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
	)
	queryRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querylens_query_rows_total",
			Help: "Total number of rows returned by executed statements.",
		},
	)
	schemaRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querylens_schema_refresh_total",
			Help: "Total number of schema refreshes by outcome.",
		},
		[]string{"outcome"},
	)
	schemaTables = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "querylens_schema_tables",
			Help: "Number of tables in the current schema snapshot.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		modelAttemptsTotal,
		modelLatencySeconds,
		pipelineFailuresTotal,
		queryDurationMs,
		queryRowsTotal,
		schemaRefreshTotal,
		schemaTables,
	)
}

func ObserveModelAttempt(task, model string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	modelAttemptsTotal.WithLabelValues(task, model, outcome).Inc()
	modelLatencySeconds.WithLabelValues(task, model).Observe(elapsed.Seconds())
}

func IncrementPipelineFailure(stage string) {
	pipelineFailuresTotal.WithLabelValues(stage).Inc()
}

func ObserveQuery(rows int, elapsed time.Duration) {
	queryDurationMs.Observe(float64(elapsed.Milliseconds()))
	if rows > 0 {
		queryRowsTotal.Add(float64(rows))
	}
}

func ObserveSchemaRefresh(tables int, err error) {
	if err != nil {
		schemaRefreshTotal.WithLabelValues("error").Inc()
		return
	}
	schemaRefreshTotal.WithLabelValues("ok").Inc()
	schemaTables.Set(float64(tables))
}
