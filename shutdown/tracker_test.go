package shutdown

import (
	"errors"
	"testing"
	"time"
)

func TestTracker_StartAndDone(t *testing.T) {
	tracker := NewTracker()

	if !tracker.Start() {
		t.Fatal("Start must succeed on an open tracker")
	}
	if tracker.ActiveCount() != 1 {
		t.Errorf("active count: %d", tracker.ActiveCount())
	}

	tracker.Done()
	if tracker.ActiveCount() != 0 {
		t.Errorf("active count after Done: %d", tracker.ActiveCount())
	}
}

func TestTracker_ClosedRejectsStart(t *testing.T) {
	tracker := NewTracker()
	tracker.Close()

	if tracker.Start() {
		t.Error("Start must fail on a closed tracker")
	}
	if !tracker.IsClosed() {
		t.Error("IsClosed must report true")
	}
}

func TestTracker_WaitCompletes(t *testing.T) {
	tracker := NewTracker()
	tracker.Start()

	go func() {
		time.Sleep(20 * time.Millisecond)
		tracker.Done()
	}()

	if err := tracker.Wait(time.Second); err != nil {
		t.Errorf("wait: %v", err)
	}
}

func TestTracker_WaitTimeout(t *testing.T) {
	tracker := NewTracker()
	tracker.Start()
	defer tracker.Done()

	err := tracker.Wait(20 * time.Millisecond)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("expected ErrWaitTimeout, got: %v", err)
	}
}
