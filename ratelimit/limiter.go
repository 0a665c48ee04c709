// Package ratelimit provides a process-wide gate that spaces outbound requests.
package ratelimit

import (
	"context"
	"time"
)

// Limiter grants permits no closer together than a fixed interval, across all
// callers. It is a single global gate, not keyed.
//
// Thread-safety: a caller holds the gate token for the whole of its wait, and
// last is only read and written while the token is held. A grant is recorded
// at the moment it is handed out, so a late timer never shortens the spacing
// seen by the next caller.
type Limiter struct {
	gate     chan struct{}
	interval time.Duration
	last     time.Time

	// observe, when set, sees every grant time while the token is held
	observe func(time.Time)
}

// New creates a Limiter. An interval <= 0 never waits.
func New(interval time.Duration) *Limiter {
	return &Limiter{
		gate:     make(chan struct{}, 1),
		interval: interval,
	}
}

// Interval returns the configured minimum spacing
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Acquire blocks until at least the interval has passed since the previous
// grant. If ctx ends first, ctx.Err() is returned and nothing is recorded.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case l.gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.gate }()

	if l.interval > 0 && !l.last.IsZero() {
		if wait := time.Until(l.last.Add(l.interval)); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()

			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	now := time.Now()
	l.last = now
	if l.observe != nil {
		l.observe(now)
	}
	return nil
}
