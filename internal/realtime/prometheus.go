package realtime

import (
	"database/sql"
	"net/http"

	"netlynx/internal/ingestion"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter publishes ingestion statistics in the Prometheus format. It
// implements ingestion.MetricsSink.
type Exporter struct {
	registry *prometheus.Registry

	linesTotal      *prometheus.CounterVec
	eventsTotal     *prometheus.CounterVec
	skippedTotal    *prometheus.CounterVec
	parseErrors     *prometheus.CounterVec
	batchDuration   *prometheus.HistogramVec
	rowsWritten     *prometheus.CounterVec
	flushDuration   *prometheus.HistogramVec
	flushErrorTotal *prometheus.CounterVec
}

var _ ingestion.MetricsSink = (*Exporter)(nil)

// NewExporter creates an exporter with its own registry. db may be nil;
// otherwise its connection pool statistics are exported too.
func NewExporter(db *sql.DB) *Exporter {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if db != nil {
		registry.MustRegister(collectors.NewDBStatsCollector(db, "netlynx"))
	}

	factory := promauto.With(registry)
	return &Exporter{
		registry: registry,

		linesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netlynx_lines_total",
				Help: "Capture lines read",
			},
			[]string{"capture"},
		),
		eventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netlynx_events_total",
				Help: "NetLog events added to the tracker",
			},
			[]string{"capture"},
		),
		skippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netlynx_lines_skipped_total",
				Help: "Header and framing lines skipped",
			},
			[]string{"capture"},
		),
		parseErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netlynx_parse_errors_total",
				Help: "Lines that failed to parse",
			},
			[]string{"capture"},
		),
		batchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "netlynx_batch_duration_seconds",
				Help:    "Time spent parsing and classifying a batch of lines",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"capture"},
		),
		rowsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netlynx_rows_written_total",
				Help: "Rows written to the database",
			},
			[]string{"capture", "table"},
		),
		flushDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "netlynx_flush_duration_seconds",
				Help:    "Database write duration",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"capture"},
		),
		flushErrorTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netlynx_flush_errors_total",
				Help: "Failed database writes",
			},
			[]string{"capture"},
		),
	}
}

func (e *Exporter) ObserveBatch(capture string, stats ingestion.BatchStats) {
	e.linesTotal.WithLabelValues(capture).Add(float64(stats.Lines))
	e.eventsTotal.WithLabelValues(capture).Add(float64(stats.Events))
	e.skippedTotal.WithLabelValues(capture).Add(float64(stats.Skipped))
	e.parseErrors.WithLabelValues(capture).Add(float64(stats.Errors))
	e.batchDuration.WithLabelValues(capture).Observe(stats.Duration.Seconds())
}

func (e *Exporter) ObserveFlush(capture string, stats ingestion.FlushStats) {
	e.flushDuration.WithLabelValues(capture).Observe(stats.Duration.Seconds())
	if stats.Err != nil {
		e.flushErrorTotal.WithLabelValues(capture).Inc()
		return
	}
	e.rowsWritten.WithLabelValues(capture, "source_records").Add(float64(stats.Sources))
	e.rowsWritten.WithLabelValues(capture, "event_records").Add(float64(stats.Events))
}

// Handler serves the registry on /metrics
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
