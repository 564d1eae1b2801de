package pipeline

import (
	"context"
	"time"

	"github.com/gbordes77/screen2deck/internal/config"
	"github.com/gbordes77/screen2deck/internal/deck"
	"github.com/gbordes77/screen2deck/internal/preprocess"
)

// Submission is a validated image upload entering the pipeline (spec §6).
// ImageBytes is already re-encoded PNG with EXIF/ancillary streams stripped
// — the bytes C1 fingerprints.
type Submission struct {
	ImageBytes    []byte
	Width, Height int
	Principal     string
	Metadata      string // opaque, carried through to the job record verbatim
	Config        config.PipelineConfig
}

// ProgressFunc reports a monotonically non-decreasing progress update
// (spec §5's ordering guarantee). state is one of the Job state machine
// values from §3.
type ProgressFunc func(state string, progress float64)

// JobContext threads one submission through the stage chain. Each stage
// reads the fields it depends on and writes the fields it owns; Report
// is called by stages that cross one of the progress boundaries in §9.
type JobContext struct {
	JobID       string
	Submission  Submission
	Fingerprint string
	Report      ProgressFunc

	Variants   []preprocess.Variant
	RawOCR     deck.RawOCR
	UsedVision bool

	MainEntries, SideEntries []deck.CardEntry
	Deck                     deck.Deck
	Warnings                 []string
}

// contextKey is an unexported type for context keys in this package.
type contextKey string

const stageTimingsKey contextKey = "pipeline_stage_timings"

// WithStageTimings stores the per-stage timing map in the context.
func WithStageTimings(ctx context.Context, timings map[string]time.Duration) context.Context {
	return context.WithValue(ctx, stageTimingsKey, timings)
}

// GetStageTimings retrieves the per-stage timing map from the context.
func GetStageTimings(ctx context.Context) (map[string]time.Duration, bool) {
	t, ok := ctx.Value(stageTimingsKey).(map[string]time.Duration)
	return t, ok
}
