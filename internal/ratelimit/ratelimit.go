// Package ratelimit provides per-identity fixed-window admission control.
package ratelimit

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Result is the outcome of an admission check.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Window is a read-only snapshot of one identity's active window.
type Window struct {
	Identity string
	Count    int
	ResetAt  time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per identity in fixed windows. A window opens
// on the first request and expires after the configured duration; requests
// beyond the per-window maximum are denied until the window resets.
type Limiter struct {
	maxRequests int
	window      time.Duration
	sweepEvery  time.Duration
	now         func() time.Time
	windows     map[string]*window
	mu          sync.Mutex
}

// NewLimiter creates a limiter allowing maxRequests per window duration.
// sweepEvery controls how often expired windows are evicted.
func NewLimiter(maxRequests int, windowDur, sweepEvery time.Duration) *Limiter {
	if maxRequests < 1 {
		maxRequests = 1
	}
	if windowDur <= 0 {
		windowDur = time.Minute
	}
	if sweepEvery <= 0 {
		sweepEvery = windowDur
	}
	return &Limiter{
		maxRequests: maxRequests,
		window:      windowDur,
		sweepEvery:  sweepEvery,
		now:         time.Now,
		windows:     make(map[string]*window),
	}
}

// Check admits or denies one request for identity. Denials carry the
// time remaining until the identity's window resets.
func (l *Limiter) Check(identity string) Result {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identity]
	if !ok || !now.Before(w.resetAt) {
		l.windows[identity] = &window{count: 1, resetAt: now.Add(l.window)}
		return Result{Allowed: true}
	}
	if w.count < l.maxRequests {
		w.count++
		return Result{Allowed: true}
	}
	return Result{Allowed: false, RetryAfter: w.resetAt.Sub(now)}
}

// Reset drops the active window for identity, if any.
func (l *Limiter) Reset(identity string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, identity)
}

// ActiveWindows returns a snapshot of all unexpired windows, sorted by identity.
func (l *Limiter) ActiveWindows() []Window {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Window, 0, len(l.windows))
	for id, w := range l.windows {
		if now.Before(w.resetAt) {
			out = append(out, Window{Identity: id, Count: w.count, ResetAt: w.resetAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Start runs the background sweep loop until ctx is cancelled.
// This should be run as a goroutine.
func (l *Limiter) Start(ctx context.Context) {
	ticker := time.NewTicker(l.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.sweep(); n > 0 {
				slog.Debug("rate limit windows swept", "evicted", n)
			}
		}
	}
}

func (l *Limiter) sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for id, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, id)
			evicted++
		}
	}
	return evicted
}
