package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry           *prometheus.Registry
	NavigationsTotal   *prometheus.CounterVec
	NavigationDuration *prometheus.HistogramVec
	IDsDiscoveredTotal prometheus.Counter
	RecordsTotal       *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
	RowsWrittenTotal   prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	navigations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookcrawl_navigations_total",
			Help: "Total page navigations issued by the crawler.",
		},
		[]string{"phase"},
	)
	navigationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookcrawl_navigation_duration_seconds",
			Help:    "Page load latency by crawl phase.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
	discovered := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookcrawl_ids_discovered_total",
			Help: "Unique book identifiers found on listing pages.",
		},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookcrawl_records_total",
			Help: "Extracted records by outcome (complete, partial, empty).",
		},
		[]string{"outcome"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookcrawl_errors_total",
			Help: "Total number of crawler errors by type.",
		},
		[]string{"error_type"},
	)
	rows := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookcrawl_rows_written_total",
			Help: "Rows flushed to the output sink.",
		},
	)

	registry.MustRegister(navigations, navigationDuration, discovered, records, errorsTotal, rows)

	return &Metrics{
		Registry:           registry,
		NavigationsTotal:   navigations,
		NavigationDuration: navigationDuration,
		IDsDiscoveredTotal: discovered,
		RecordsTotal:       records,
		ErrorsTotal:        errorsTotal,
		RowsWrittenTotal:   rows,
	}
}

// ObserveNavigation counts a page load and records its duration.
func (m *Metrics) ObserveNavigation(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.NavigationsTotal.WithLabelValues(phase).Inc()
	m.NavigationDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// IncDiscovered increments the discovered identifiers counter.
func (m *Metrics) IncDiscovered() {
	if m == nil {
		return
	}
	m.IDsDiscoveredTotal.Inc()
}

// IncRecord counts an extracted record by outcome.
func (m *Metrics) IncRecord(outcome string) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(outcome).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncRows increments the rows written counter.
func (m *Metrics) IncRows() {
	if m == nil {
		return
	}
	m.RowsWrittenTotal.Inc()
}
