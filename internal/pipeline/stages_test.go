package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/gbordes77/screen2deck/internal/cache"
	"github.com/gbordes77/screen2deck/internal/catalogue"
	"github.com/gbordes77/screen2deck/internal/config"
	"github.com/gbordes77/screen2deck/internal/deck"
	"github.com/gbordes77/screen2deck/internal/ocr"
	"github.com/gbordes77/screen2deck/internal/parser"
	"github.com/gbordes77/screen2deck/internal/preprocess"
	"github.com/gbordes77/screen2deck/internal/resolver"
	"github.com/gbordes77/screen2deck/internal/visionfallback"
)

func samplePNGBytes(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 0, 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func noopReport(string, float64) {}

func TestPreprocessStage_ProducesVariants(t *testing.T) {
	jc := &JobContext{
		Submission: Submission{ImageBytes: samplePNGBytes(64, 64)},
		Report:     noopReport,
	}
	if err := (PreprocessStage{}).Run(context.Background(), jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(jc.Variants) == 0 {
		t.Fatal("expected at least one preprocessed variant")
	}
}

func TestPreprocessStage_RejectsUndecodableBytes(t *testing.T) {
	jc := &JobContext{
		Submission: Submission{ImageBytes: []byte("not an image")},
		Report:     noopReport,
	}
	if err := (PreprocessStage{}).Run(context.Background(), jc); err == nil {
		t.Fatal("expected an error for undecodable image bytes")
	}
}

type fakeOCRProvider struct {
	best       deck.RawOCR
	bestErr    error
	visionUsed bool
	vision     deck.RawOCR
	visionErr  error
}

func (f *fakeOCRProvider) BestOf(ctx context.Context, variants []preprocess.Variant, opts ocr.BestOfOptions) (deck.RawOCR, error) {
	return f.best, f.bestErr
}
func (f *fakeOCRProvider) Vision(ctx context.Context, image []byte) (deck.RawOCR, error) {
	f.visionUsed = true
	return f.vision, f.visionErr
}

func TestOCRStage_SkipsFallbackOnHighConfidence(t *testing.T) {
	provider := &fakeOCRProvider{best: deck.RawOCR{
		Spans:          []deck.OCRSpan{{Text: "4 Lightning Bolt", Confidence: 0.95}},
		MeanConfidence: 0.95,
	}}
	gate := visionfallback.New(visionfallback.Config{Enabled: true})
	stage := OCRStage{Provider: provider, Gate: gate}
	jc := &JobContext{
		Submission: Submission{Width: 1920, Height: 1080, Config: config.PipelineConfig{VisionFallbackEnabled: true}},
		Report:     noopReport,
	}
	if err := stage.Run(context.Background(), jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if provider.visionUsed {
		t.Fatal("expected high-confidence OCR to skip the vision fallback")
	}
	if jc.UsedVision {
		t.Fatal("UsedVision should remain false")
	}
}

func TestOCRStage_FallsBackOnLowConfidence(t *testing.T) {
	provider := &fakeOCRProvider{
		best:   deck.RawOCR{Spans: []deck.OCRSpan{{Text: "x", Confidence: 0.1}}, MeanConfidence: 0.1},
		vision: deck.RawOCR{Spans: []deck.OCRSpan{{Text: "4 Lightning Bolt", Confidence: 0.9}}, MeanConfidence: 0.9},
	}
	gate := visionfallback.New(visionfallback.Config{Enabled: true})
	stage := OCRStage{Provider: provider, Gate: gate}
	jc := &JobContext{
		Submission: Submission{Width: 1920, Height: 1080, Config: config.PipelineConfig{VisionFallbackEnabled: true}},
		Report:     noopReport,
	}
	if err := stage.Run(context.Background(), jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !provider.visionUsed || !jc.UsedVision {
		t.Fatal("expected low-confidence OCR to trigger the vision fallback")
	}
	if jc.RawOCR.MeanConfidence != 0.9 {
		t.Fatalf("expected jc.RawOCR to be replaced by the vision result, got %v", jc.RawOCR)
	}
}

func TestOCRStage_PropagatesBestOfFailure(t *testing.T) {
	provider := &fakeOCRProvider{bestErr: errors.New("boom")}
	gate := visionfallback.New(visionfallback.Config{})
	stage := OCRStage{Provider: provider, Gate: gate}
	jc := &JobContext{Submission: Submission{}, Report: noopReport}
	if err := stage.Run(context.Background(), jc); err == nil {
		t.Fatal("expected an error when BestOf fails")
	}
}

func TestParseStage_RejectsEmptyResult(t *testing.T) {
	jc := &JobContext{
		RawOCR: deck.RawOCR{Spans: []deck.OCRSpan{{Text: "not a card line", Confidence: 0.9}}},
		Report: noopReport,
	}
	err := (ParseStage{Mode: parser.Combined}).Run(context.Background(), jc)
	if err == nil {
		t.Fatal("expected an error when no entries are recognized")
	}
}

func TestParseStage_PopulatesEntries(t *testing.T) {
	jc := &JobContext{
		RawOCR: deck.RawOCR{Spans: []deck.OCRSpan{{Text: "4 Lightning Bolt", Confidence: 0.9}}},
		Report: noopReport,
	}
	if err := (ParseStage{Mode: parser.Combined}).Run(context.Background(), jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(jc.MainEntries) == 0 {
		t.Fatal("expected at least one parsed main-deck entry")
	}
}

type fakeCatalogue struct{}

func (fakeCatalogue) FuzzyResolve(ctx context.Context, rawName string, topK int) (catalogue.Resolution, error) {
	return catalogue.Resolution{CanonicalName: rawName, ID: "card-1"}, nil
}

func TestResolveStage_PopulatesDeck(t *testing.T) {
	c, err := cache.New(nil, 64)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	stage := ResolveStage{Resolver: resolver.New(fakeCatalogue{}, c)}
	jc := &JobContext{
		MainEntries: []deck.CardEntry{{Quantity: 4, Name: "Lightning Bolt"}},
		SideEntries: []deck.CardEntry{{Quantity: 2, Name: "Negate"}},
		Report:      noopReport,
	}
	if err := stage.Run(context.Background(), jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(jc.Deck.Main) != 1 || len(jc.Deck.Side) != 1 {
		t.Fatalf("Deck = %+v, want 1 main and 1 side entry", jc.Deck)
	}
}

func TestRulesStage_RejectsInvalidDeck(t *testing.T) {
	jc := &JobContext{Deck: deck.Deck{}, Report: noopReport}
	if err := (RulesStage{}).Run(context.Background(), jc); err == nil {
		t.Fatal("expected an empty deck to fail structural validation")
	}
}
