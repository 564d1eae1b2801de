// Package progress implements the Progress Channel (C13): job-indexed
// fan-out of state/progress frames to subscribers, generalized from the
// teacher's StreamManager/StreamSession SSE fan-out into a job-keyed
// subscription model with periodic emission and ping/pong framing.
package progress

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Frame is one update pushed to a subscriber (spec §4.13).
type Frame struct {
	State       string          `json:"state"`
	Progress    float64         `json:"progress"`
	Timestamp   time.Time       `json:"timestamp"`
	Result      json.RawMessage `json:"result,omitempty"`
	CloseReason string          `json:"close_reason,omitempty"`
}

// Terminal reports whether the frame represents a terminal job state.
func (f Frame) Terminal() bool {
	switch f.State {
	case "completed", "failed", "cancelled":
		return true
	default:
		return false
	}
}

// Lookup resolves the current frame for a job id. ok is false if the job
// id is unknown — the Progress Channel holds only weak, lookup-only
// references to job identifiers (spec §3), never ownership.
type Lookup func(jobID string) (Frame, bool)

// Options tunes the channel's emission cadence and send deadline.
type Options struct {
	Cadence      time.Duration // default 2s
	SendDeadline time.Duration // default 500ms
	BufferSize   int           // default 32
}

// Channel is the process-wide fan-out owner for a set of jobs.
type Channel struct {
	mu        sync.Mutex
	byJob     map[string]map[string]*subscription // jobID -> subID -> sub
	bySub     map[string]*subscription             // subID -> sub (reverse map)
	lookup    Lookup
	opts      Options
}

type subscription struct {
	id     string
	jobID  string
	frames chan Frame
	done   chan struct{}
	once   sync.Once
}

// New creates a Channel. lookup is called once at subscribe time and
// again every cadence tick until a terminal frame is observed.
func New(lookup Lookup, opts Options) *Channel {
	if opts.Cadence <= 0 {
		opts.Cadence = 2 * time.Second
	}
	if opts.SendDeadline <= 0 {
		opts.SendDeadline = 500 * time.Millisecond
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 32
	}
	return &Channel{
		byJob:  make(map[string]map[string]*subscription),
		bySub:  make(map[string]*subscription),
		lookup: lookup,
		opts:   opts,
	}
}

// Subscription is the caller-facing handle: read Frames(), call Ping or
// RequestStatus to mimic inbound client frames, call Close to disconnect.
type Subscription struct {
	ch  *Channel
	sub *subscription
}

// Frames returns the channel of frames pushed to this subscriber.
// It is closed when the subscription ends (terminal state or eviction).
func (s *Subscription) Frames() <-chan Frame { return s.sub.frames }

// Close evicts the subscription, removing it from both the job-indexed
// set and the connection metadata map (spec §4.13).
func (s *Subscription) Close() { s.ch.unsubscribe(s.sub.id) }

// Ping elicits a pong — delivered as a frame with state "pong" so it
// travels the same channel as real updates.
func (s *Subscription) Ping() {
	s.ch.trySend(s.sub, Frame{State: "pong", Timestamp: time.Now()})
}

// RequestStatus re-emits the current job state immediately.
func (s *Subscription) RequestStatus() {
	if frame, ok := s.ch.lookup(s.sub.jobID); ok {
		s.ch.trySend(s.sub, frame)
	}
}

// Subscribe opens a subscription to jobID. The current job state is
// emitted immediately; subsequent frames arrive at Publish time or on the
// cadence tick, until a terminal frame closes the subscription.
func (c *Channel) Subscribe(jobID string) *Subscription {
	sub := &subscription{
		id:     uuid.NewString(),
		jobID:  jobID,
		frames: make(chan Frame, c.opts.BufferSize),
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	if c.byJob[jobID] == nil {
		c.byJob[jobID] = make(map[string]*subscription)
	}
	c.byJob[jobID][sub.id] = sub
	c.bySub[sub.id] = sub
	c.mu.Unlock()

	if frame, ok := c.lookup(jobID); ok {
		c.trySend(sub, frame)
		if frame.Terminal() {
			go c.closeTerminal(sub, frame)
		}
	}

	go c.pollLoop(sub)

	return &Subscription{ch: c, sub: sub}
}

// Publish pushes frame to every subscriber of jobID immediately. Terminal
// frames close the subscription after delivery (spec §4.13).
func (c *Channel) Publish(jobID string, frame Frame) {
	c.mu.Lock()
	subs := make([]*subscription, 0, len(c.byJob[jobID]))
	for _, s := range c.byJob[jobID] {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		c.trySend(s, frame)
		if frame.Terminal() {
			go c.closeTerminal(s, frame)
		}
	}
}

// pollLoop periodically re-fetches job state every cadence tick until a
// terminal frame is observed or the subscription is closed (spec §4.13).
func (c *Channel) pollLoop(sub *subscription) {
	ticker := time.NewTicker(c.opts.Cadence)
	defer ticker.Stop()
	for {
		select {
		case <-sub.done:
			return
		case <-ticker.C:
			frame, ok := c.lookup(sub.jobID)
			if !ok {
				continue
			}
			c.trySend(sub, frame)
			if frame.Terminal() {
				c.closeTerminal(sub, frame)
				return
			}
		}
	}
}

// trySend delivers frame within the send deadline; a failed send evicts
// the subscriber (spec §4.13's "failed sends disconnect and evict").
func (c *Channel) trySend(sub *subscription, frame Frame) {
	select {
	case sub.frames <- frame:
	case <-time.After(c.opts.SendDeadline):
		c.unsubscribe(sub.id)
	case <-sub.done:
	}
}

// closeTerminal sends a final close-reason frame then unsubscribes.
func (c *Channel) closeTerminal(sub *subscription, frame Frame) {
	closing := frame
	closing.CloseReason = frame.State
	select {
	case sub.frames <- closing:
	case <-time.After(c.opts.SendDeadline):
	case <-sub.done:
	}
	c.unsubscribe(sub.id)
}

func (c *Channel) unsubscribe(subID string) {
	c.mu.Lock()
	sub, ok := c.bySub[subID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.bySub, subID)
	if set, ok := c.byJob[sub.jobID]; ok {
		delete(set, subID)
		if len(set) == 0 {
			delete(c.byJob, sub.jobID)
		}
	}
	c.mu.Unlock()

	sub.once.Do(func() {
		close(sub.done)
		close(sub.frames)
	})
}

// SubscriberCount returns the number of active subscribers for a job, for
// diagnostics.
func (c *Channel) SubscriberCount(jobID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byJob[jobID])
}
