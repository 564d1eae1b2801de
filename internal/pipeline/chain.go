package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gbordes77/screen2deck/internal/tracing"
)

// recoverStage runs fn inside a deferred recover so a panicking stage does
// not crash the worker goroutine. A caught panic is converted into an
// error that names the stage.
func recoverStage(name string, fn func() error) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("stage %s: panic: %v", name, r)
		}
	}()
	return fn()
}

// Chain executes an ordered sequence of Stage against one JobContext.
type Chain struct {
	stages []Stage

	mu      sync.RWMutex
	timings map[string]time.Duration
}

// NewChain creates a Chain from the given stages, run in the order given.
func NewChain(stages ...Stage) *Chain {
	return &Chain{stages: stages, timings: make(map[string]time.Duration)}
}

// Run executes every enabled stage in order, stopping at the first error.
// The context passed to each stage carries the run's per-stage timing map
// (see GetStageTimings) for diagnostics.
func (c *Chain) Run(ctx context.Context, jc *JobContext) error {
	timings := make(map[string]time.Duration, len(c.stages))
	ctx = WithStageTimings(ctx, timings)

	for _, stage := range c.stages {
		if !stage.Enabled() {
			continue
		}

		name := stage.Name()
		stageCtx, span := tracing.StartPipelineSpan(ctx, name)
		start := time.Now()

		err := recoverStage(name, func() error {
			return stage.Run(stageCtx, jc)
		})
		elapsed := time.Since(start)
		timings[name] = elapsed
		c.recordTiming(name, elapsed)

		if err != nil {
			tracing.RecordError(stageCtx, err)
			span.End()
			return fmt.Errorf("stage %s: %w", name, err)
		}
		span.End()
	}

	return nil
}

// Timings returns a snapshot of the latest per-stage execution times.
func (c *Chain) Timings() map[string]time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make(map[string]time.Duration, len(c.timings))
	for k, v := range c.timings {
		snapshot[k] = v
	}
	return snapshot
}

// Stages returns the ordered list of stages in the chain.
func (c *Chain) Stages() []Stage {
	result := make([]Stage, len(c.stages))
	copy(result, c.stages)
	return result
}

func (c *Chain) recordTiming(name string, d time.Duration) {
	c.mu.Lock()
	c.timings[name] = d
	c.mu.Unlock()
}
