package models

import "time"

// SystemMetrics is a point-in-time snapshot of service counters, exposed on
// the admin stats endpoint alongside the Prometheus scrape target.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	TokensIssued             uint64    `json:"tokens_issued"`
	TokenReuseDetected       uint64    `json:"token_reuse_detected"`
	FilesUploaded            uint64    `json:"files_uploaded"`
	UploadedBytes            uint64    `json:"uploaded_bytes"`
	FilesDownloaded          uint64    `json:"files_downloaded"`
	FilesDeleted             uint64    `json:"files_deleted"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
