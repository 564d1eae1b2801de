package catalogue

import (
	"sync"
	"time"
)

// minIntervalGate is a single-process minimum-interval rate gate for
// remote catalogue calls, the special case of the teacher's token-bucket
// rate limiter where burst is always 1 and the bucket refills to exactly
// one token every interval.
type minIntervalGate struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newMinIntervalGate(interval time.Duration) *minIntervalGate {
	return &minIntervalGate{interval: interval}
}

// allow reports whether a remote call may proceed now, recording the call
// time if so.
func (g *minIntervalGate) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if now.Sub(g.last) < g.interval {
		return false
	}
	g.last = now
	return true
}
