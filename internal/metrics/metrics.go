// Package metrics provides Prometheus metrics for the driftfs server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftfs_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driftfs_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Directory listing metrics
	listingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftfs_listings_total",
			Help: "Total directory listings served",
		},
		[]string{"strategy"},
	)

	dirCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftfs_dir_cache_lookups_total",
			Help: "Directory cache lookups",
		},
		[]string{"result"},
	)

	statBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "driftfs_stat_batch_duration_seconds",
			Help:    "Duration of a batched stat pass over directory entries",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Upload metrics
	uploadChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftfs_upload_chunks_total",
			Help: "Total upload chunks received",
		},
	)

	uploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftfs_upload_bytes_total",
			Help: "Total bytes received via chunked uploads",
		},
	)

	uploadsFinalizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftfs_uploads_finalized_total",
			Help: "Total upload finalizations",
		},
		[]string{"status"},
	)

	uploadSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftfs_upload_sessions_active",
			Help: "Number of active upload sessions",
		},
	)

	// Thumbnail metrics
	thumbnailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftfs_thumbnails_total",
			Help: "Thumbnail requests by outcome",
		},
		[]string{"outcome"},
	)

	thumbnailGenDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driftfs_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Path guard metrics
	authorizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftfs_path_authorizations_total",
			Help: "Path guard authorization checks",
		},
		[]string{"result"},
	)

	// Event metrics
	changeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftfs_change_events_total",
			Help: "Filesystem change events published",
		},
		[]string{"type"},
	)

	eventSubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftfs_event_subscribers_active",
			Help: "Number of active change-event subscribers",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordListing records a served directory listing.
// Strategy is "name" for the stat-page-only path, "stat" for stat-everything.
func RecordListing(strategy string) {
	listingsTotal.WithLabelValues(strategy).Inc()
}

// RecordDirCacheLookup records a directory cache hit or miss.
func RecordDirCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	dirCacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordStatBatch records the duration of a batched stat pass.
func RecordStatBatch(duration time.Duration) {
	statBatchDuration.Observe(duration.Seconds())
}

// RecordUploadChunk records a received chunk.
func RecordUploadChunk(bytes int64) {
	uploadChunksTotal.Inc()
	uploadBytesTotal.Add(float64(bytes))
}

// RecordUploadFinalized records an upload finalization attempt.
func RecordUploadFinalized(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	uploadsFinalizedTotal.WithLabelValues(status).Inc()
}

// SetUploadSessionsActive sets the active upload session gauge.
func SetUploadSessionsActive(count int64) {
	uploadSessionsActive.Set(float64(count))
}

// RecordThumbnail records a thumbnail request outcome
// ("cached", "generated", "unsupported", "failed").
func RecordThumbnail(outcome string) {
	thumbnailsTotal.WithLabelValues(outcome).Inc()
}

// RecordThumbnailGeneration records generation duration for "image" or "pdf".
func RecordThumbnailGeneration(kind string, duration time.Duration) {
	thumbnailGenDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordAuthorization records a path guard decision.
func RecordAuthorization(allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	authorizationsTotal.WithLabelValues(result).Inc()
}

// RecordChangeEvent records a published filesystem change event.
func RecordChangeEvent(eventType string) {
	changeEventsTotal.WithLabelValues(eventType).Inc()
}

// SetEventSubscribersActive sets the active event subscriber gauge.
func SetEventSubscribersActive(count int64) {
	eventSubscribersActive.Set(float64(count))
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
