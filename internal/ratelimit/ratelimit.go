// Package ratelimit implements the Rate Limiter (C15): a sliding-window
// request counter with a short burst allowance per address, generalized
// from the teacher's per-provider token-bucket middleware into the
// per-address sliding-window contract spec §4.15 requires.
package ratelimit

import (
	"sync"
	"time"
)

// Limits bounds a single address's request rate (from config.RateLimitConfig).
type Limits struct {
	PerMinute    int
	BurstPer5Sec int
}

// Decision is the result of a Check call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// window tracks the recent request timestamps for one address.
type window struct {
	mu    sync.Mutex
	hits  []time.Time
}

// Limiter enforces a sliding one-minute window plus a five-second burst cap,
// keyed per address.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// New creates a Limiter. Check drops an address's expired timestamps but
// keeps its window in the map; Sweep removes the windows of idle addresses.
func New() *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Check evaluates address against limits and records the attempt if allowed
// (spec §4.15: check(address, limits) -> (allowed, remaining, reset_at)).
func (l *Limiter) Check(address string, limits Limits) Decision {
	w := l.windowFor(address)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	minuteAgo := now.Add(-time.Minute)
	fiveSecAgo := now.Add(-5 * time.Second)

	kept := w.hits[:0]
	burstCount := 0
	for _, t := range w.hits {
		if t.After(minuteAgo) {
			kept = append(kept, t)
			if t.After(fiveSecAgo) {
				burstCount++
			}
		}
	}
	w.hits = kept

	resetAt := now.Add(time.Minute)
	if len(w.hits) > 0 {
		resetAt = w.hits[0].Add(time.Minute)
	}

	if len(w.hits) >= limits.PerMinute || burstCount >= limits.BurstPer5Sec {
		return Decision{Allowed: false, Remaining: max0(limits.PerMinute - len(w.hits)), ResetAt: resetAt}
	}

	w.hits = append(w.hits, now)
	remaining := limits.PerMinute - len(w.hits)
	return Decision{Allowed: true, Remaining: max0(remaining), ResetAt: resetAt}
}

func (l *Limiter) windowFor(address string) *window {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[address]
	if !ok {
		w = &window{}
		l.windows[address] = w
	}
	return w
}

// Sweep drops per-address windows that have been idle since before cutoff,
// bounding memory for a long-running process (spec §5's resource model).
func (l *Limiter) Sweep(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for addr, w := range l.windows {
		w.mu.Lock()
		idle := len(w.hits) == 0 || w.hits[len(w.hits)-1].Before(cutoff)
		w.mu.Unlock()
		if idle {
			delete(l.windows, addr)
			removed++
		}
	}
	return removed
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
