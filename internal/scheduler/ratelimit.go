package scheduler

import "time"

// RateLimiter is a sliding-window counter of dispatch timestamps. It is owned
// by the dispatcher goroutine and is not safe for concurrent use.
type RateLimiter struct {
	max    int
	window time.Duration
	now    func() time.Time
	stamps []time.Time
}

// NewRateLimiter allows at most max dispatches in any window. A nil now uses
// time.Now.
func NewRateLimiter(max int, window time.Duration, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{max: max, window: window, now: now}
}

// prune drops timestamps that have left the window.
func (l *RateLimiter) prune() time.Time {
	now := l.now()
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	l.stamps = l.stamps[i:]
	return now
}

// Allow reports whether another dispatch fits in the window right now.
func (l *RateLimiter) Allow() bool {
	l.prune()
	return len(l.stamps) < l.max
}

// Record counts a dispatch at the current time.
func (l *RateLimiter) Record() {
	now := l.prune()
	l.stamps = append(l.stamps, now)
}

// Count returns the number of dispatches currently inside the window.
func (l *RateLimiter) Count() int {
	l.prune()
	return len(l.stamps)
}

// Delay returns how long until the window admits another dispatch.
func (l *RateLimiter) Delay() time.Duration {
	now := l.prune()
	if len(l.stamps) < l.max {
		return 0
	}
	return l.stamps[len(l.stamps)-l.max].Add(l.window).Sub(now)
}
