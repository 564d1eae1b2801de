// Package ocr defines the OCR provider contract (C5): a best-of-variants
// call and a Vision-model fallback call, both deterministic given fixed
// input bytes, config, and seed. Concrete engines are wired in at startup;
// this package only names the capability interface and the scoring rule
// callers use to pick among variant results.
package ocr

import (
	"context"
	"fmt"

	"github.com/gbordes77/screen2deck/internal/deck"
	"github.com/gbordes77/screen2deck/internal/preprocess"
)

// Provider is the capability interface the pipeline depends on. Real
// engines, offline deterministic stubs, and fault-injecting test doubles
// all implement it; callers never type-switch on the concrete engine.
type Provider interface {
	// BestOf runs OCR on each variant in order and returns the
	// best-scoring result, per spec §4.5.
	BestOf(ctx context.Context, variants []preprocess.Variant, opts BestOfOptions) (deck.RawOCR, error)
	// Vision invokes the generalist fallback model directly on the
	// original image bytes.
	Vision(ctx context.Context, image []byte) (deck.RawOCR, error)
}

// BestOfOptions tunes the best-of scoring and early-stop behavior.
type BestOfOptions struct {
	SpanMinConfidence float64
	EarlyStopConf     float64
	EarlyStopSpans    int
}

// VisionError distinguishes a Vision-call failure from a merely
// low-quality Vision result (spec §4.5: "must surface failures distinctly").
type VisionError struct {
	Cause error
}

func (e *VisionError) Error() string { return fmt.Sprintf("ocr: vision call failed: %v", e.Cause) }
func (e *VisionError) Unwrap() error { return e.Cause }

// Score implements the best-of composite: 0.6·span_count + 40·mean_confidence.
func Score(r deck.RawOCR) float64 {
	return 0.6*float64(len(r.Spans)) + 40*r.MeanConfidence
}

// ShouldStopEarly reports whether a result is already good enough that
// remaining variants need not be tried (spec §4.5).
func ShouldStopEarly(r deck.RawOCR, opts BestOfOptions) bool {
	stopConf := opts.EarlyStopConf
	if stopConf <= 0 {
		stopConf = 0.9
	}
	stopSpans := opts.EarlyStopSpans
	if stopSpans <= 0 {
		stopSpans = 20
	}
	return r.MeanConfidence >= stopConf && len(r.Spans) >= stopSpans
}

// RunBestOf is the engine-agnostic best-of driver: it calls runOne for
// each variant in order, scoring and early-stopping per spec §4.5.
// Concrete Provider implementations can share this driver by supplying a
// per-variant OCR function.
func RunBestOf(ctx context.Context, variants []preprocess.Variant, opts BestOfOptions, runOne func(context.Context, preprocess.Variant) (deck.RawOCR, error)) (deck.RawOCR, error) {
	var best deck.RawOCR
	haveBest := false

	for _, v := range variants {
		result, err := runOne(ctx, v)
		if err != nil {
			continue
		}
		if !haveBest || Score(result) > Score(best) {
			best = result
			haveBest = true
		}
		if ShouldStopEarly(best, opts) {
			break
		}
	}

	if !haveBest {
		return deck.RawOCR{}, fmt.Errorf("ocr: all variants failed")
	}
	return best, nil
}
