package shutdown

import (
	"sync"
)

// SignalCounter tracks repeated shutdown signals: first signal starts a
// graceful shutdown, reaching the threshold triggers the force callback.
type SignalCounter struct {
	mu         sync.Mutex
	count      int
	forceAfter int
	onForce    func()
}

// NewSignalCounter creates a SignalCounter. onForce is invoked when the
// count reaches forceAfter (typically 2) and may be nil.
func NewSignalCounter(forceAfter int, onForce func()) *SignalCounter {
	return &SignalCounter{
		forceAfter: forceAfter,
		onForce:    onForce,
	}
}

// Increment increases the signal count and returns the new count.
// The force callback runs while holding the lock, so it must be fast or
// exit the process.
func (s *SignalCounter) Increment() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	if s.count >= s.forceAfter && s.onForce != nil {
		s.onForce()
	}
	return s.count
}

// Count returns the current signal count.
func (s *SignalCounter) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Reset resets the signal count to zero.
func (s *SignalCounter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = 0
}

// SetForceCallback replaces the force callback.
func (s *SignalCounter) SetForceCallback(onForce func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onForce = onForce
}
