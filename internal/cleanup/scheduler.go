// Package cleanup schedules cancelable grace-period teardown of a stream's
// HLS output and room, keyed by stream key.
package cleanup

import (
	"log/slog"
	"sync"
	"time"

	"classroom-stream/origin/internal/domain"
)

// Scheduler manages one cancelable timer per stream key.
type Scheduler struct {
	mu     sync.Mutex
	timers map[domain.StreamKey]*time.Timer
	grace  time.Duration
}

func NewScheduler(grace time.Duration) *Scheduler {
	return &Scheduler{
		timers: make(map[domain.StreamKey]*time.Timer),
		grace:  grace,
	}
}

// Schedule arms a grace-period timer for key. If fn has not fired by the time
// Cancel is called for the same key, it never will. Replaces any existing
// timer for the key.
func (s *Scheduler) Schedule(key domain.StreamKey, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[key]; ok {
		existing.Stop()
	}

	s.timers[key] = time.AfterFunc(s.grace, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		slog.Info("cleanup grace period elapsed", "stream_key", key)
		fn()
	})
	slog.Debug("cleanup scheduled", "stream_key", key, "grace", s.grace)
}

// Cancel stops a pending timer for key, if any. Called when a new publish
// for the same key arrives before the grace period elapses.
func (s *Scheduler) Cancel(key domain.StreamKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.timers[key]
	if !ok {
		return false
	}
	stopped := timer.Stop()
	delete(s.timers, key)
	if stopped {
		slog.Debug("cleanup canceled", "stream_key", key)
	}
	return stopped
}

// Pending reports whether a grace-period timer is currently armed for key.
func (s *Scheduler) Pending(key domain.StreamKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}
