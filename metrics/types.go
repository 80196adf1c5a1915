// Package metrics provides in-memory request and GPU metrics for the
// status endpoints.
package metrics

import "time"

// RequestRecord represents a single refinement request execution.
type RequestRecord struct {
	// ID is the prediction identifier.
	ID string `json:"id"`

	// Scheduler is the denoising scheduler the request used.
	Scheduler string `json:"scheduler"`

	// Resolution is the requested resolution tier.
	Resolution string `json:"resolution"`

	// Status is "success" or "error".
	Status string `json:"status"`

	// StartTime is when the request began.
	StartTime time.Time `json:"start_time"`

	// Duration is the total execution time.
	Duration time.Duration `json:"duration"`

	// ErrorMsg contains error details when Status is "error".
	ErrorMsg string `json:"error_msg,omitempty"`
}

// GPUMetrics represents GPU resource utilization.
type GPUMetrics struct {
	// Utilization is the GPU utilization percentage (0-100).
	Utilization float64 `json:"utilization"`

	// Temperature is the GPU temperature in Celsius.
	Temperature float64 `json:"temperature"`

	// MemoryTotal is the total GPU memory in bytes.
	MemoryTotal int64 `json:"memory_total"`

	// MemoryUsed is the GPU memory currently in use (bytes).
	MemoryUsed int64 `json:"memory_used"`

	// MemoryFree is the available GPU memory (bytes).
	MemoryFree int64 `json:"memory_free"`
}

// RequestMetrics represents aggregated request statistics.
type RequestMetrics struct {
	// TotalProcessed is the total number of requests handled.
	TotalProcessed int64 `json:"total_processed"`

	// TotalSuccess is the count of successful requests.
	TotalSuccess int64 `json:"total_success"`

	// TotalErrors is the count of failed requests.
	TotalErrors int64 `json:"total_errors"`

	// ByScheduler contains per-scheduler statistics.
	ByScheduler map[string]*SchedulerMetrics `json:"by_scheduler"`
}

// SchedulerMetrics represents statistics for one scheduler.
type SchedulerMetrics struct {
	// Count is the total number of requests run with this scheduler.
	Count int64 `json:"count"`

	// SuccessRate is the percentage of successful requests (0-100).
	SuccessRate float64 `json:"success_rate"`

	// AvgDuration is the average execution time.
	AvgDuration time.Duration `json:"avg_duration"`
}

// SystemStatus represents the overall service health.
type SystemStatus struct {
	// Health is "running" or "error".
	Health string `json:"health"`

	// Version is the application version string.
	Version string `json:"version"`

	// Backend describes the loaded inference backend.
	Backend string `json:"backend"`

	// Uptime is the duration since the service started.
	Uptime time.Duration `json:"uptime"`

	// LastCheck is the timestamp of this status snapshot.
	LastCheck time.Time `json:"last_check"`
}

// Status constants for RequestRecord.
const (
	RequestStatusSuccess = "success"
	RequestStatusError   = "error"
)

// Health constants for SystemStatus.
const (
	SystemHealthRunning = "running"
	SystemHealthError   = "error"
)
