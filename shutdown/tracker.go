// Package shutdown coordinates graceful service shutdown: in-flight
// operation tracking, ordered cleanup execution and OS signal handling.
package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Func is a cleanup function executed during shutdown.
type Func func(ctx context.Context) error

// ErrTrackerClosed is returned when starting an operation on a closed tracker.
var ErrTrackerClosed = errors.New("operation tracker is closed")

// ErrWaitTimeout is returned when Wait times out before all operations complete.
var ErrWaitTimeout = errors.New("wait timeout: operations did not complete in time")

// Tracker tracks in-flight operations so shutdown can wait for them.
//
// Usage:
//
//	tracker := NewTracker()
//
//	// In request handler:
//	if !tracker.Start() {
//	    return // shutting down, reject request
//	}
//	defer tracker.Done()
//
//	// During shutdown:
//	tracker.Close()
//	if err := tracker.Wait(30 * time.Second); err != nil {
//	    log.Println("timeout waiting for operations")
//	}
type Tracker struct {
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active int64
	closed bool
}

// NewTracker creates a Tracker ready to track operations.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Start attempts to start tracking a new operation. Returns false when the
// tracker is closed; the caller must then reject the operation. On true the
// caller MUST call Done exactly once.
func (t *Tracker) Start() bool {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return false
	}
	t.mu.RUnlock()

	// Double-check under the write lock to avoid racing Close.
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	t.wg.Add(1)
	atomic.AddInt64(&t.active, 1)
	t.mu.Unlock()
	return true
}

// Done marks an operation as complete.
func (t *Tracker) Done() {
	atomic.AddInt64(&t.active, -1)
	t.wg.Done()
}

// Wait blocks until all tracked operations complete or the timeout elapses.
func (t *Tracker) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrWaitTimeout
	}
}

// Close stops new operations from starting. Operations already in progress
// continue until they call Done.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// ActiveCount returns the current number of active operations.
func (t *Tracker) ActiveCount() int64 {
	return atomic.LoadInt64(&t.active)
}

// IsClosed reports whether the tracker has been closed.
func (t *Tracker) IsClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}
