package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Manager coordinates graceful shutdown. It composes a Tracker for
// in-flight operations, a Registry of ordered cleanup functions and a
// SignalCounter for force shutdown on repeated signals.
//
// Usage:
//
//	manager := NewManager(logger)
//
//	manager.Register("history", 30, func(ctx context.Context) error {
//	    return store.Close()
//	})
//	manager.Register("logger", 5, func(ctx context.Context) error {
//	    return logger.Sync()
//	})
//
//	manager.Start()
//	<-manager.Context().Done()
//	manager.Shutdown()
type Manager struct {
	logger   *zap.Logger
	timeout  time.Duration
	mu       sync.Mutex
	started  bool
	shutdown bool

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *Tracker
	registry *Registry
	signals  *SignalCounter

	sigChan chan os.Signal
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout sets the shutdown timeout. Default is 60 seconds.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// NewManager creates a Manager. A second OS signal forces immediate exit.
func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:   logger,
		timeout:  60 * time.Second,
		ctx:      ctx,
		cancel:   cancel,
		tracker:  NewTracker(),
		registry: NewRegistry(),
		sigChan:  make(chan os.Signal, 1),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.signals = NewSignalCounter(2, func() {
		m.logger.Warn("received second signal, forcing immediate shutdown")
		os.Exit(1)
	})

	return m
}

// Context returns the managed context, cancelled when shutdown starts.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup function. Lower priority values run first.
func (m *Manager) Register(name string, priority int, fn Func) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority),
	)
}

// Start begins signal handling for SIGINT and SIGTERM. The first signal
// cancels the managed context; the second forces exit. Safe to call more
// than once.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range m.sigChan {
			count := m.signals.Increment()
			if count == 1 {
				m.logger.Info("received shutdown signal, initiating graceful shutdown",
					zap.String("signal", sig.String()),
				)
				m.cancel()
			}
		}
	}()

	m.logger.Info("shutdown manager started, listening for signals")
}

// Shutdown executes the graceful shutdown sequence: stop accepting new
// operations, wait for in-flight operations within the timeout, then run
// cleanup functions in priority order. Idempotent.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	m.mu.Unlock()

	startTime := time.Now()
	m.logger.Info("initiating graceful shutdown",
		zap.Duration("timeout", m.timeout),
		zap.Int("registered_handlers", m.registry.Count()),
	)

	m.tracker.Close()

	if active := m.tracker.ActiveCount(); active > 0 {
		m.logger.Info("waiting for in-flight operations",
			zap.Int64("active_count", active),
		)
	}

	if err := m.tracker.Wait(m.timeout); err != nil {
		m.logger.Warn("timeout waiting for in-flight operations",
			zap.Duration("waited", time.Since(startTime)),
			zap.Int64("remaining_ops", m.tracker.ActiveCount()),
		)
	}

	// Cleanup gets whatever time is left, with a one second floor.
	remaining := m.timeout - time.Since(startTime)
	if remaining < time.Second {
		remaining = time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	m.logger.Info("executing cleanup functions",
		zap.Strings("handlers", m.registry.Names()),
	)

	errs := m.registry.Shutdown(ctx)
	for _, err := range errs {
		m.logger.Error("cleanup function failed", zap.Error(err))
	}

	duration := time.Since(startTime)
	if len(errs) > 0 {
		m.logger.Error("shutdown completed with errors",
			zap.Duration("duration", duration),
			zap.Int("error_count", len(errs)),
		)
		return fmt.Errorf("shutdown had %d errors", len(errs))
	}

	m.logger.Info("graceful shutdown completed",
		zap.Duration("duration", duration),
	)

	signal.Stop(m.sigChan)
	close(m.sigChan)

	return nil
}

// Wait blocks until the managed context is cancelled.
func (m *Manager) Wait() {
	<-m.ctx.Done()
}

// WrapOperation executes fn while tracking it as an in-flight operation.
// Returns ErrTrackerClosed without executing fn when shutdown has begun.
func (m *Manager) WrapOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	if !m.tracker.Start() {
		m.logger.Debug("operation rejected, system shutting down",
			zap.String("operation", name),
		)
		return ErrTrackerClosed
	}
	defer m.tracker.Done()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return context.Canceled
	default:
	}

	return fn(ctx)
}

// ActiveOperations returns the count of in-flight operations.
func (m *Manager) ActiveOperations() int64 {
	return m.tracker.ActiveCount()
}

// IsShuttingDown reports whether shutdown has been initiated.
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown || m.tracker.IsClosed()
}

// RegisteredHandlers returns cleanup handler names in execution order.
func (m *Manager) RegisteredHandlers() []string {
	return m.registry.Names()
}
