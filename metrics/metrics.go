package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the application metrics
type Metrics struct {
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Resolution outcomes, labelled by error class ("ok" on success)
	ResolveTotal *prometheus.CounterVec

	// Stream outcomes, labelled by mode ("single" or "archive") and error class
	StreamTotal     *prometheus.CounterVec
	RelayBytesTotal *prometheus.CounterVec

	// Archive entries, labelled by "written" or "omitted"
	ArchiveEntriesTotal *prometheus.CounterVec
}

var (
	globalMetrics *Metrics
	metricsMutex  sync.Mutex
)

// NewMetrics returns the process-wide metrics, registering them on first use
func NewMetrics() *Metrics {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	if globalMetrics != nil {
		return globalMetrics
	}

	m := &Metrics{
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postrelay_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "postrelay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, including streamed bodies",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"method", "route"}),

		ResolveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postrelay_resolve_total",
			Help: "Total number of post resolutions by outcome",
		}, []string{"mode", "outcome"}),

		StreamTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postrelay_stream_total",
			Help: "Total number of stream requests by outcome",
		}, []string{"mode", "outcome"}),

		RelayBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postrelay_relay_bytes_total",
			Help: "Bytes written to clients",
		}, []string{"mode"}),

		ArchiveEntriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postrelay_archive_entries_total",
			Help: "Archive entries written or omitted",
		}, []string{"result"}),
	}

	registerOrGet(m.HTTPRequestTotal)
	registerOrGet(m.HTTPRequestDuration)
	registerOrGet(m.ResolveTotal)
	registerOrGet(m.StreamTotal)
	registerOrGet(m.RelayBytesTotal)
	registerOrGet(m.ArchiveEntriesTotal)

	globalMetrics = m
	return m
}

// registerOrGet tries to register a metric, returns the existing one if already registered
func registerOrGet(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}
