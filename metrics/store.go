package metrics

import (
	"sync"
	"time"

	"refinery/refiner"
)

// Store is the in-memory metrics store. It keeps a ring buffer of recent
// requests, per-scheduler aggregates and the latest GPU snapshot.
//
// Store satisfies both the Collector interface and refiner.Recorder, so
// the orchestrator can feed it directly.
//
// Usage:
//
//	store := NewStore(DefaultStoreConfig(), time.Now())
//	store.RecordRequest(rec)
//	summary := store.GetRequestMetrics()
type Store struct {
	mu sync.RWMutex

	// Ring buffer of recent requests.
	history []RequestRecord
	cap     int
	head    int
	size    int

	// Aggregates.
	totalRequests int64
	totalSuccess  int64
	totalErrors   int64
	byScheduler   map[string]*schedulerStats

	// Latest GPU snapshot.
	gpu GPUMetrics

	startTime time.Time
	version   string
	backend   string
	degraded  bool
}

// schedulerStats holds per-scheduler aggregation data.
type schedulerStats struct {
	count         int64
	successCount  int64
	totalDuration time.Duration
}

// StoreConfig configures the Store.
type StoreConfig struct {
	// HistoryCapacity is the max number of requests retained in the ring.
	HistoryCapacity int
	// Version is the application version string.
	Version string
	// Backend describes the loaded inference backend.
	Backend string
}

// DefaultStoreConfig returns a default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		HistoryCapacity: 100,
		Version:         "0.0.0",
	}
}

// NewStore creates a Store. startTime is used to calculate uptime.
func NewStore(config StoreConfig, startTime time.Time) *Store {
	capacity := config.HistoryCapacity
	if capacity < 1 {
		capacity = 100
	}

	return &Store{
		history:     make([]RequestRecord, capacity),
		cap:         capacity,
		byScheduler: make(map[string]*schedulerStats),
		startTime:   startTime,
		version:     config.Version,
		backend:     config.Backend,
	}
}

// RecordRequest logs a completed request.
func (s *Store) RecordRequest(rec RequestRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[s.head] = rec
	s.head = (s.head + 1) % s.cap
	if s.size < s.cap {
		s.size++
	}

	s.totalRequests++
	switch rec.Status {
	case RequestStatusSuccess:
		s.totalSuccess++
	case RequestStatusError:
		s.totalErrors++
	}

	stats, ok := s.byScheduler[rec.Scheduler]
	if !ok {
		stats = &schedulerStats{}
		s.byScheduler[rec.Scheduler] = stats
	}
	stats.count++
	if rec.Status == RequestStatusSuccess {
		stats.successCount++
	}
	stats.totalDuration += rec.Duration
}

// Record implements refiner.Recorder.
func (s *Store) Record(rec refiner.PredictionRecord) {
	s.RecordRequest(RequestRecord{
		ID:         rec.ID,
		Scheduler:  rec.Scheduler,
		Resolution: rec.Resolution,
		Status:     rec.Status,
		StartTime:  rec.CreatedAt,
		Duration:   rec.Duration,
		ErrorMsg:   rec.Error,
	})
}

// GetRequestMetrics returns aggregated request statistics.
func (s *Store) GetRequestMetrics() RequestMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := RequestMetrics{
		TotalProcessed: s.totalRequests,
		TotalSuccess:   s.totalSuccess,
		TotalErrors:    s.totalErrors,
		ByScheduler:    make(map[string]*SchedulerMetrics),
	}

	for scheduler, stats := range s.byScheduler {
		var successRate float64
		var avgDuration time.Duration
		if stats.count > 0 {
			successRate = float64(stats.successCount) / float64(stats.count) * 100
			avgDuration = stats.totalDuration / time.Duration(stats.count)
		}

		result.ByScheduler[scheduler] = &SchedulerMetrics{
			Count:       stats.count,
			SuccessRate: successRate,
			AvgDuration: avgDuration,
		}
	}

	return result
}

// GetRecentRequests returns the N most recent request records, newest
// first. If limit exceeds available records, all are returned.
func (s *Store) GetRecentRequests(limit int) []RequestRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.size == 0 {
		return []RequestRecord{}
	}
	if limit > s.size {
		limit = s.size
	}

	result := make([]RequestRecord, limit)
	for i := 0; i < limit; i++ {
		// Walk backwards from the head, newest first.
		idx := (s.head - 1 - i + s.cap) % s.cap
		result[i] = s.history[idx]
	}
	return result
}

// UpdateGPUMetrics updates the current GPU snapshot.
func (s *Store) UpdateGPUMetrics(gpu GPUMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gpu = gpu
}

// GetGPUMetrics returns the current GPU snapshot.
func (s *Store) GetGPUMetrics() GPUMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gpu
}

// SetDegraded marks the service health as degraded, for example when the
// model host failed to reload.
func (s *Store) SetDegraded(degraded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degraded = degraded
}

// GetSystemStatus returns the overall service health.
func (s *Store) GetSystemStatus() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := SystemHealthRunning
	if s.degraded {
		health = SystemHealthError
	}

	return SystemStatus{
		Health:    health,
		Version:   s.version,
		Backend:   s.backend,
		Uptime:    time.Since(s.startTime),
		LastCheck: time.Now(),
	}
}

// Verify Store implements Collector.
var _ Collector = (*Store)(nil)

// Verify Store implements refiner.Recorder.
var _ refiner.Recorder = (*Store)(nil)
