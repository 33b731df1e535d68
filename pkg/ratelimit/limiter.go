// Package ratelimit implements an in-memory sliding window limiter with one
// global scope and one scope per API key.
//
// Each scope keeps the timestamps of its admitted requests over the trailing
// Window. A check evicts expired timestamps, compares the remaining count with
// the limit and records the new admission, all under one lock, so concurrent
// callers can never admit more than the limit within any rolling window.
package ratelimit

import (
	"sync/atomic"
	"time"
)

// Window is the trailing duration every scope counts admissions over.
const Window = 60 * time.Second

// cleanupEvery is the number of per-key checks between sweeps that drop
// per-key windows which became empty.
const cleanupEvery = 1024

// Quota is the rate limit telemetry computed for one check.
type Quota struct {
	Limit     int
	Remaining int
	// Reset is the unix time (seconds) at which the oldest admission in the
	// window expires.
	Reset int64
}

// Decision is the outcome of a single check.
type Decision struct {
	Allowed bool
	// Quota is nil when the scope has limiting disabled.
	Quota *Quota
}

// Config holds per-minute ceilings. Zero disables limiting for that scope.
type Config struct {
	Global int
	PerKey int
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source. The returned times should carry a
// monotonic reading, as time.Now does.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// Limiter tracks the global window and the per-key windows.
type Limiter struct {
	global int
	perKey int

	globalWin guard[window]
	keys      guard[map[int64]*window]
	keyChecks atomic.Uint64

	now func() time.Time
}

// New creates a Limiter with the given ceilings.
func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		global: max(cfg.Global, 0),
		perKey: max(cfg.PerKey, 0),
		now:    time.Now,
	}
	l.keys.v = make(map[int64]*window)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// GlobalLimit returns the configured global ceiling.
func (l *Limiter) GlobalLimit() int { return l.global }

// PerKeyLimit returns the configured per-key ceiling.
func (l *Limiter) PerKeyLimit() int { return l.perKey }

// CheckGlobal records one request against the global scope.
func (l *Limiter) CheckGlobal() (Decision, error) {
	if l.global == 0 {
		return Decision{Allowed: true}, nil
	}

	var d Decision
	err := l.globalWin.with(func(w *window) {
		d = admit(w, l.global, l.now())
	})
	if err != nil {
		return Decision{}, err
	}
	return d, nil
}

// CheckKey records one request against the scope of the API key with the
// given internal id.
func (l *Limiter) CheckKey(id int64) (Decision, error) {
	if l.perKey == 0 {
		return Decision{Allowed: true}, nil
	}

	n := l.keyChecks.Add(1)

	var d Decision
	err := l.keys.with(func(m *map[int64]*window) {
		now := l.now()
		if n%cleanupEvery == 0 {
			sweep(*m, now.Add(-Window))
		}

		w, ok := (*m)[id]
		if !ok {
			w = &window{}
			(*m)[id] = w
		}
		d = admit(w, l.perKey, now)
	})
	if err != nil {
		return Decision{}, err
	}
	return d, nil
}

// admit runs the prune, compare and push sequence. The caller holds the lock
// guarding w, and now is read under that lock so pushes stay ordered.
func admit(w *window, limit int, now time.Time) Decision {
	w.prune(now.Add(-Window))

	if w.len() >= limit {
		return Decision{
			Allowed: false,
			Quota:   &Quota{Limit: limit, Remaining: 0, Reset: resetAt(w, now)},
		}
	}

	w.push(now)
	return Decision{
		Allowed: true,
		Quota:   &Quota{Limit: limit, Remaining: limit - w.len(), Reset: resetAt(w, now)},
	}
}

// resetAt converts the expiry of the oldest entry into unix seconds. The
// interval is computed on the monotonic reading and added to the wall clock
// exactly once.
func resetAt(w *window, now time.Time) int64 {
	wall := now.Unix()
	oldest, ok := w.oldest()
	if !ok {
		return wall + int64(Window/time.Second)
	}
	left := oldest.Add(Window).Sub(now)
	if left < 0 {
		left = 0
	}
	return wall + int64(left/time.Second)
}

// sweep drops every per-key window that is empty after pruning.
func sweep(m map[int64]*window, cutoff time.Time) {
	for id, w := range m {
		w.prune(cutoff)
		if w.len() == 0 {
			delete(m, id)
		}
	}
}
