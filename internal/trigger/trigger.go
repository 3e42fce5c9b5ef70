// Package trigger turns bursts of events into serialized runs.
package trigger

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Debouncer runs the most recent callback once no new trigger arrived for
// the configured delay.
type Debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	delay    time.Duration
	callback func()
}

// NewDebouncer creates a debouncer
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger schedules the callback to run after the debounce delay
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		cb := d.callback
		d.mu.Unlock()

		if cb != nil {
			cb()
		}
	})
}

// Stop cancels a pending callback
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

// SingleFlight runs fn with single-flight semantics. If a run is already
// in progress, at most one additional run is queued; further concurrent
// requests are folded into that one.
type SingleFlight struct {
	fn      func(ctx context.Context) error
	logger  *slog.Logger
	mu      sync.Mutex // guards running and pending
	running bool
	pending bool
}

// NewSingleFlight wraps fn
func NewSingleFlight(fn func(ctx context.Context) error, logger *slog.Logger) *SingleFlight {
	return &SingleFlight{fn: fn, logger: logger}
}

// Do runs fn unless a run is in flight, in which case a re-run is queued
// and Do returns immediately.
func (s *SingleFlight) Do(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.pending = true
		s.mu.Unlock()
		s.logger.Info("run already in progress, queuing pending re-run")
		return
	}
	s.running = true
	s.mu.Unlock()

	for {
		if err := s.fn(ctx); err != nil {
			s.logger.Error("run failed", "error", err)
		}

		// Atomically check whether another run was requested while we were
		// running. If not, release the running slot and stop; if yes, clear
		// the flag and loop to service that one pending request.
		s.mu.Lock()
		if !s.pending {
			s.running = false
			s.mu.Unlock()
			return
		}
		s.pending = false
		s.mu.Unlock()

		s.logger.Info("re-running due to pending request")
	}
}
