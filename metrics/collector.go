package metrics

// Collector is the read/write surface for service metrics. Implementations
// must be concurrency-safe and return zero values for unavailable metrics.
type Collector interface {
	// RecordRequest logs a completed refinement request.
	RecordRequest(rec RequestRecord)

	// GetRequestMetrics returns aggregated request statistics.
	GetRequestMetrics() RequestMetrics

	// GetRecentRequests returns the N most recent request records,
	// newest first.
	GetRecentRequests(limit int) []RequestRecord

	// UpdateGPUMetrics updates the current GPU snapshot.
	UpdateGPUMetrics(gpu GPUMetrics)

	// GetGPUMetrics returns the current GPU snapshot.
	GetGPUMetrics() GPUMetrics

	// GetSystemStatus returns the overall service health.
	GetSystemStatus() SystemStatus
}
