package metrics

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// GPUReader reads the current GPU metrics. The abstraction exists so tests
// can substitute a mock for nvidia-smi.
type GPUReader interface {
	ReadGPUMetrics() (GPUMetrics, error)
}

// GPUCollectorConfig configures the GPUCollector.
type GPUCollectorConfig struct {
	// CollectionInterval is how often to sample GPU metrics.
	CollectionInterval time.Duration

	// HistorySize is the number of samples to retain.
	HistorySize int

	// NvidiaSMIPath is the path to the nvidia-smi executable.
	// Empty uses "nvidia-smi" and relies on PATH.
	NvidiaSMIPath string
}

// DefaultGPUCollectorConfig returns the default sampling configuration:
// one sample every 5 seconds, one hour of history.
func DefaultGPUCollectorConfig() GPUCollectorConfig {
	return GPUCollectorConfig{
		CollectionInterval: 5 * time.Second,
		HistorySize:        720,
		NvidiaSMIPath:      "nvidia-smi",
	}
}

// GPUCollector periodically samples GPU state via nvidia-smi and keeps a
// ring buffer of recent samples. Each new sample is also pushed to the
// onMetrics callback, typically Store.UpdateGPUMetrics.
type GPUCollector struct {
	mu sync.RWMutex

	config GPUCollectorConfig
	reader GPUReader

	history  []GPUMetrics
	histHead int
	histSize int
	histCap  int

	lastMetrics GPUMetrics
	available   bool
	lastError   error

	onMetrics func(GPUMetrics)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGPUCollector creates a GPUCollector. The onMetrics callback is
// invoked for every successful sample.
func NewGPUCollector(config GPUCollectorConfig, onMetrics func(GPUMetrics)) *GPUCollector {
	if config.CollectionInterval < time.Second {
		config.CollectionInterval = 5 * time.Second
	}
	if config.HistorySize < 1 {
		config.HistorySize = 720
	}
	if config.NvidiaSMIPath == "" {
		config.NvidiaSMIPath = "nvidia-smi"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &GPUCollector{
		config:    config,
		history:   make([]GPUMetrics, config.HistorySize),
		histCap:   config.HistorySize,
		onMetrics: onMetrics,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// NewGPUCollectorWithReader creates a GPUCollector with a custom reader.
// Primarily used for testing.
func NewGPUCollectorWithReader(config GPUCollectorConfig, reader GPUReader, onMetrics func(GPUMetrics)) *GPUCollector {
	c := NewGPUCollector(config, onMetrics)
	c.reader = reader
	return c
}

// Start begins periodic sampling in a background goroutine.
func (c *GPUCollector) Start() {
	c.wg.Add(1)
	go c.collectLoop()
}

// Stop halts sampling and blocks until the goroutine has exited.
func (c *GPUCollector) Stop() {
	c.cancel()
	c.wg.Wait()
}

// IsAvailable reports whether the last sample succeeded.
func (c *GPUCollector) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

// LastError returns the most recent sampling error, or nil.
func (c *GPUCollector) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// CurrentMetrics returns the most recent successful sample.
func (c *GPUCollector) CurrentMetrics() GPUMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMetrics
}

// History returns the last N samples, oldest first. If limit exceeds
// available samples, all are returned.
func (c *GPUCollector) History(limit int) []GPUMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if limit <= 0 || c.histSize == 0 {
		return []GPUMetrics{}
	}
	if limit > c.histSize {
		limit = c.histSize
	}

	result := make([]GPUMetrics, limit)
	for i := 0; i < limit; i++ {
		idx := (c.histHead - limit + i + c.histCap) % c.histCap
		result[i] = c.history[idx]
	}
	return result
}

// HistorySize returns the current number of retained samples.
func (c *GPUCollector) HistorySize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.histSize
}

func (c *GPUCollector) collectLoop() {
	defer c.wg.Done()

	// Sample immediately on start.
	c.collectOnce()

	ticker := time.NewTicker(c.config.CollectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.collectOnce()
		}
	}
}

func (c *GPUCollector) collectOnce() {
	var sample GPUMetrics
	var err error

	if c.reader != nil {
		sample, err = c.reader.ReadGPUMetrics()
	} else {
		sample, err = c.readNvidiaSMI()
	}

	c.mu.Lock()
	if err != nil {
		c.available = false
		c.lastError = err
		// Keep the last valid sample, skip the ring buffer.
	} else {
		c.available = true
		c.lastError = nil
		c.lastMetrics = sample

		c.history[c.histHead] = sample
		c.histHead = (c.histHead + 1) % c.histCap
		if c.histSize < c.histCap {
			c.histSize++
		}
	}
	current := c.lastMetrics
	c.mu.Unlock()

	// Callback runs outside the lock.
	if c.onMetrics != nil && err == nil {
		c.onMetrics(current)
	}
}

func (c *GPUCollector) readNvidiaSMI() (GPUMetrics, error) {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.config.NvidiaSMIPath,
		"--query-gpu=utilization.gpu,temperature.gpu,memory.used,memory.total",
		"--format=csv,noheader,nounits")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return GPUMetrics{}, fmt.Errorf("nvidia-smi failed: %w (stderr: %s)", err, stderr.String())
	}

	return parseNvidiaSMIOutput(stdout.String())
}

// parseNvidiaSMIOutput parses the CSV output of nvidia-smi:
// utilization.gpu, temperature.gpu, memory.used, memory.total.
func parseNvidiaSMIOutput(output string) (GPUMetrics, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return GPUMetrics{}, fmt.Errorf("empty nvidia-smi output")
	}

	reader := csv.NewReader(strings.NewReader(output))
	record, err := reader.Read()
	if err != nil {
		return GPUMetrics{}, fmt.Errorf("failed to parse CSV: %w", err)
	}

	if len(record) < 4 {
		return GPUMetrics{}, fmt.Errorf("unexpected field count: got %d, expected 4", len(record))
	}

	util, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
	if err != nil {
		return GPUMetrics{}, fmt.Errorf("failed to parse utilization: %w", err)
	}

	temp, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	if err != nil {
		return GPUMetrics{}, fmt.Errorf("failed to parse temperature: %w", err)
	}

	memUsedMiB, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	if err != nil {
		return GPUMetrics{}, fmt.Errorf("failed to parse memory used: %w", err)
	}

	memTotalMiB, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
	if err != nil {
		return GPUMetrics{}, fmt.Errorf("failed to parse memory total: %w", err)
	}

	const mibToBytes = 1024 * 1024
	memTotal := int64(memTotalMiB * mibToBytes)
	memUsed := int64(memUsedMiB * mibToBytes)

	return GPUMetrics{
		Utilization: util,
		Temperature: temp,
		MemoryTotal: memTotal,
		MemoryUsed:  memUsed,
		MemoryFree:  memTotal - memUsed,
	}, nil
}

// MockGPUReader is a GPUReader for tests.
type MockGPUReader struct {
	mu      sync.Mutex
	metrics GPUMetrics
	err     error
	calls   int
}

// NewMockGPUReader creates a mock reader returning the given metrics.
func NewMockGPUReader(metrics GPUMetrics) *MockGPUReader {
	return &MockGPUReader{metrics: metrics}
}

// SetMetrics updates the metrics returned by this mock.
func (m *MockGPUReader) SetMetrics(metrics GPUMetrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = metrics
}

// SetError sets an error to be returned by ReadGPUMetrics.
func (m *MockGPUReader) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// ReadGPUMetrics returns the configured metrics or error.
func (m *MockGPUReader) ReadGPUMetrics() (GPUMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return GPUMetrics{}, m.err
	}
	return m.metrics, nil
}

// CallCount returns the number of ReadGPUMetrics calls.
func (m *MockGPUReader) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
