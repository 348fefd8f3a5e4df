package cleanup

import (
	"sync/atomic"
	"testing"
	"time"

	"classroom-stream/origin/internal/domain"
)

func TestScheduleFiresAfterGrace(t *testing.T) {
	s := NewScheduler(20 * time.Millisecond)
	var fired atomic.Bool
	s.Schedule(domain.StreamKey("key1"), func() { fired.Store(true) })

	time.Sleep(60 * time.Millisecond)
	if !fired.Load() {
		t.Fatal("expected callback to have fired after grace period")
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	s := NewScheduler(30 * time.Millisecond)
	var fired atomic.Bool
	s.Schedule(domain.StreamKey("key1"), func() { fired.Store(true) })

	if !s.Cancel(domain.StreamKey("key1")) {
		t.Fatal("expected Cancel to report a pending timer was stopped")
	}

	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Fatal("callback fired despite being canceled")
	}
}

func TestRescheduleReplacesExistingTimer(t *testing.T) {
	s := NewScheduler(30 * time.Millisecond)
	var count atomic.Int32
	s.Schedule(domain.StreamKey("key1"), func() { count.Add(1) })
	s.Schedule(domain.StreamKey("key1"), func() { count.Add(1) })

	time.Sleep(60 * time.Millisecond)
	if count.Load() != 1 {
		t.Fatalf("expected exactly one fire after reschedule, got %d", count.Load())
	}
}

func TestPendingReportsArmedTimer(t *testing.T) {
	s := NewScheduler(50 * time.Millisecond)
	if s.Pending("key1") {
		t.Fatal("expected no pending timer before Schedule")
	}
	s.Schedule(domain.StreamKey("key1"), func() {})
	if !s.Pending("key1") {
		t.Fatal("expected pending timer after Schedule")
	}
}
