package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for ingestion and exports
type Metrics struct {
	IngestionRuns     *prometheus.CounterVec
	IngestionDuration prometheus.Histogram
	FetchErrors       *prometheus.CounterVec
	RowsIngested      prometheus.Gauge
	Exports           *prometheus.CounterVec
}

var (
	once    sync.Once
	current *Metrics
)

// Get returns the process-wide metrics, registering them on first use
func Get() *Metrics {
	once.Do(func() {
		current = New(prometheus.DefaultRegisterer)
	})
	return current
}

// New registers a fresh set of collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IngestionRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "check_export_ingestion_runs_total",
			Help: "Ingestion runs by outcome",
		}, []string{"outcome"}), // success, fetch_error, failure

		IngestionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "check_export_ingestion_duration_seconds",
			Help:    "Time spent fetching, flattening and storing one snapshot",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		FetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "check_export_fetch_errors_total",
			Help: "Check API fetch failures",
		}, []string{"kind"}),

		RowsIngested: factory.NewGauge(prometheus.GaugeOpts{
			Name: "check_export_rows_last_snapshot",
			Help: "Rows in the most recently stored snapshot",
		}),

		Exports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "check_export_exports_total",
			Help: "Snapshot exports served by format",
		}, []string{"format"}),
	}
}
