// Package metrics holds the Prometheus collectors of the media service
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "media",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "media",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "route"},
	)

	// Upload counters
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "media",
			Subsystem: "upload",
			Name:      "total",
			Help:      "Total file uploads by media kind and outcome",
		},
		[]string{"kind", "status"},
	)

	// Upload bytes counter
	UploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "media",
			Subsystem: "upload",
			Name:      "bytes_total",
			Help:      "Total bytes stored by successful uploads",
		},
		[]string{"kind"},
	)

	// Preview cache lookups
	PreviewCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "media",
			Subsystem: "preview",
			Name:      "cache_lookups_total",
			Help:      "Preview cache lookups by result",
		},
		[]string{"result"},
	)

	// Preview generation duration
	PreviewGenerateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "media",
			Subsystem: "preview",
			Name:      "generate_duration_seconds",
			Help:      "Preview generation duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"kind", "status"},
	)

	// Reaped preview files
	PreviewsReapedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "media",
			Subsystem: "preview",
			Name:      "reaped_total",
			Help:      "Total expired previews removed by the reaper",
		},
	)

	// Reaper run duration
	ReapDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "media",
			Subsystem: "preview",
			Name:      "reap_duration_seconds",
			Help:      "Preview reaper run duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30},
		},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, route, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, route, status).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(durationSec)
}

// RecordUpload records a file upload
func RecordUpload(kind, status string, bytes int64) {
	UploadsTotal.WithLabelValues(kind, status).Inc()
	if status == "success" {
		UploadBytesTotal.WithLabelValues(kind).Add(float64(bytes))
	}
}

// RecordCacheLookup records a preview cache hit or miss
func RecordCacheLookup(hit bool) {
	if hit {
		PreviewCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	PreviewCacheTotal.WithLabelValues("miss").Inc()
}

// RecordPreview records a preview generation
func RecordPreview(kind, status string, durationSec float64) {
	PreviewGenerateDuration.WithLabelValues(kind, status).Observe(durationSec)
}

// RecordReap records a reaper run
func RecordReap(removed int, durationSec float64) {
	PreviewsReapedTotal.Add(float64(removed))
	ReapDuration.Observe(durationSec)
}
