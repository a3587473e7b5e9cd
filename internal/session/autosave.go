package session

import (
	"sync"
	"time"
)

// Scheduler debounces autosave: every edit re-arms a single timer slot, so a
// burst of edits inside the window produces exactly one persist call after
// the last edit.
type Scheduler struct {
	mu      sync.Mutex
	delay   time.Duration
	persist func()
	timer   *time.Timer
	stopped bool
}

func NewScheduler(delay time.Duration, persist func()) *Scheduler {
	return &Scheduler{delay: delay, persist: persist}
}

// Schedule arms (or re-arms) the autosave timer.
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.persist)
}

// Flush cancels any pending timer and persists immediately. Used before
// finalize and shutdown so no edit is left unwritten.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	stopped := s.stopped
	s.mu.Unlock()

	if !stopped {
		s.persist()
	}
}

// Stop cancels any pending timer without persisting. No Schedule call takes
// effect afterward.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
