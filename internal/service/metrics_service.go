package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/theprantadutta/filerunner/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides
// lightweight snapshots for the admin stats endpoint. It satisfies the
// metrics interfaces of the token and file services.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	tokensIssued    prometheus.Counter
	tokensRotated   prometheus.Counter
	tokenReuse      prometheus.Counter
	tokensRevoked   *prometheus.CounterVec
	tokensPurged    prometheus.Counter
	filesUploaded   prometheus.Counter
	uploadBytes     prometheus.Counter
	filesDownloaded *prometheus.CounterVec
	filesDeleted    prometheus.Counter

	requestCount         uint64
	requestDurationTotal uint64
	issuedCount          uint64
	reuseCount           uint64
	uploadCount          uint64
	uploadBytesTotal     uint64
	downloadCount        uint64
	deleteCount          uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	tokensIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_tokens_issued_total",
		Help: "Total refresh token families started",
	})

	tokensRotated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_tokens_rotated_total",
		Help: "Total successful refresh token rotations",
	})

	tokenReuse := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_reuse_detected_total",
		Help: "Total refresh token reuse detections",
	})

	tokensRevoked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_tokens_revoked_total",
		Help: "Total refresh tokens revoked, by reason",
	}, []string{"reason"})

	tokensPurged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_tokens_purged_total",
		Help: "Total expired refresh tokens removed by maintenance",
	})

	filesUploaded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "files_uploaded_total",
		Help: "Total files ingested",
	})

	uploadBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "files_uploaded_bytes_total",
		Help: "Total bytes ingested",
	})

	filesDownloaded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "files_downloaded_total",
		Help: "Total files served, by access mode",
	}, []string{"access"})

	filesDeleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "files_deleted_total",
		Help: "Total files removed",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, tokensIssued, tokensRotated, tokenReuse,
		tokensRevoked, tokensPurged, filesUploaded, uploadBytes, filesDownloaded, filesDeleted, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		tokensIssued:    tokensIssued,
		tokensRotated:   tokensRotated,
		tokenReuse:      tokenReuse,
		tokensRevoked:   tokensRevoked,
		tokensPurged:    tokensPurged,
		filesUploaded:   filesUploaded,
		uploadBytes:     uploadBytes,
		filesDownloaded: filesDownloaded,
		filesDeleted:    filesDeleted,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// TokenIssued counts a fresh credential family.
func (m *MetricsService) TokenIssued() {
	if m == nil {
		return
	}
	m.tokensIssued.Inc()
	atomic.AddUint64(&m.issuedCount, 1)
}

// TokenRotated counts a successful single-use rotation.
func (m *MetricsService) TokenRotated() {
	if m == nil {
		return
	}
	m.tokensRotated.Inc()
}

// TokenReuseDetected counts a replayed refresh credential.
func (m *MetricsService) TokenReuseDetected() {
	if m == nil {
		return
	}
	m.tokenReuse.Inc()
	atomic.AddUint64(&m.reuseCount, 1)
}

// TokensRevoked counts revocations by reason.
func (m *MetricsService) TokensRevoked(reason string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.tokensRevoked.WithLabelValues(reason).Add(float64(count))
}

// TokensPurged counts expired rows removed by maintenance sweeps.
func (m *MetricsService) TokensPurged(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.tokensPurged.Add(float64(count))
}

// FileUploaded counts one ingested file and its size.
func (m *MetricsService) FileUploaded(sizeBytes int64) {
	if m == nil {
		return
	}
	m.filesUploaded.Inc()
	if sizeBytes > 0 {
		m.uploadBytes.Add(float64(sizeBytes))
		atomic.AddUint64(&m.uploadBytesTotal, uint64(sizeBytes))
	}
	atomic.AddUint64(&m.uploadCount, 1)
}

// FileDownloaded counts one served file labelled by access mode.
func (m *MetricsService) FileDownloaded(access string) {
	if m == nil {
		return
	}
	m.filesDownloaded.WithLabelValues(access).Inc()
	atomic.AddUint64(&m.downloadCount, 1)
}

// FilesDeleted counts removed files.
func (m *MetricsService) FilesDeleted(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.filesDeleted.Add(float64(count))
	atomic.AddUint64(&m.deleteCount, uint64(count))
}

// Snapshot returns aggregated metrics suitable for the admin stats endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		TokensIssued:             atomic.LoadUint64(&m.issuedCount),
		TokenReuseDetected:       atomic.LoadUint64(&m.reuseCount),
		FilesUploaded:            atomic.LoadUint64(&m.uploadCount),
		UploadedBytes:            atomic.LoadUint64(&m.uploadBytesTotal),
		FilesDownloaded:          atomic.LoadUint64(&m.downloadCount),
		FilesDeleted:             atomic.LoadUint64(&m.deleteCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
