package pipeline

import (
	"bytes"
	"context"
	"image"
	_ "image/png" // submissions are re-encoded to PNG by the intake stage

	"github.com/gbordes77/screen2deck/internal/deck"
	"github.com/gbordes77/screen2deck/internal/errs"
	"github.com/gbordes77/screen2deck/internal/ocr"
	"github.com/gbordes77/screen2deck/internal/parser"
	"github.com/gbordes77/screen2deck/internal/preprocess"
	"github.com/gbordes77/screen2deck/internal/resolver"
	"github.com/gbordes77/screen2deck/internal/rules"
	"github.com/gbordes77/screen2deck/internal/tracing"
	"github.com/gbordes77/screen2deck/internal/visionfallback"
)

// PreprocessStage produces the preprocessed image variants (C4).
type PreprocessStage struct{}

func (PreprocessStage) Name() string  { return "preprocess" }
func (PreprocessStage) Enabled() bool { return true }

func (PreprocessStage) Run(ctx context.Context, jc *JobContext) error {
	src, _, err := image.Decode(bytes.NewReader(jc.Submission.ImageBytes))
	if err != nil {
		return errs.New(errs.BadImage, "decoding submitted image: "+err.Error())
	}

	opts := preprocess.Options{
		Denoise:  jc.Submission.Config.Preprocess.Denoise,
		Binarize: jc.Submission.Config.Preprocess.Binarize,
		Sharpen:  jc.Submission.Config.Preprocess.Sharpen,
		Superres: jc.Submission.Config.Preprocess.Superres,
	}
	jc.Variants = preprocess.Variants(src, opts)
	jc.Report("processing", 20)
	return nil
}

// OCRStage runs the best-of-variants OCR call and the confidence-gated
// Vision fallback (C5+C6).
type OCRStage struct {
	Provider ocr.Provider
	Gate     *visionfallback.Gate
	Opts     ocr.BestOfOptions
}

func (s OCRStage) Name() string  { return "ocr" }
func (s OCRStage) Enabled() bool { return true }

func (s OCRStage) Run(ctx context.Context, jc *JobContext) error {
	result, err := s.Provider.BestOf(ctx, jc.Variants, s.Opts)
	if err != nil {
		return errs.New(errs.OCRFailed, "best-of OCR: "+err.Error())
	}

	decision := s.Gate.Evaluate(result.MeanConfidence, len(result.Spans), jc.Submission.Width, jc.Submission.Height)
	if jc.Submission.Config.VisionFallbackEnabled && decision.UseFallback {
		visionResult, visionErr := s.Provider.Vision(ctx, jc.Submission.ImageBytes)
		s.Gate.RecordResult(visionErr == nil)
		if visionErr == nil {
			result = visionResult
			jc.UsedVision = true
		} else {
			jc.Warnings = append(jc.Warnings, "vision fallback failed: "+visionErr.Error())
		}
	} else {
		s.Gate.RecordResult(true)
	}

	jc.RawOCR = result
	tracing.SetOCRAttributes(ctx, result.MeanConfidence, len(result.Spans), jc.UsedVision)
	jc.Report("processing", 40)
	return nil
}

// ParseStage turns OCR spans into structured entries (C7).
type ParseStage struct {
	Mode parser.Mode
}

func (s ParseStage) Name() string  { return "parse" }
func (s ParseStage) Enabled() bool { return true }

func (s ParseStage) Run(ctx context.Context, jc *JobContext) error {
	main, side := parser.Parse(jc.RawOCR.Spans, s.Mode)
	if len(main) == 0 && len(side) == 0 {
		return errs.New(errs.OCRFailed, "no card entries recognized in OCR output")
	}
	jc.MainEntries = main
	jc.SideEntries = side
	jc.Report("processing", 60)
	return nil
}

// ResolveStage enriches parsed entries with canonical names (C8).
type ResolveStage struct {
	Resolver *resolver.Resolver
}

func (s ResolveStage) Name() string  { return "resolve" }
func (s ResolveStage) Enabled() bool { return true }

func (s ResolveStage) Run(ctx context.Context, jc *JobContext) error {
	ropts := resolver.Options{
		AlwaysVerifyCatalogue: jc.Submission.Config.AlwaysVerifyCatalogue,
		FuzzyTopK:             jc.Submission.Config.FuzzyTopK,
	}

	mainNorm, err := s.Resolver.Resolve(ctx, jc.MainEntries, ropts)
	if err != nil {
		return errs.New(errs.ExternalService, "resolving main deck: "+err.Error())
	}
	sideNorm, err := s.Resolver.Resolve(ctx, jc.SideEntries, ropts)
	if err != nil {
		return errs.New(errs.ExternalService, "resolving sideboard: "+err.Error())
	}

	jc.Deck = deck.Deck{Main: mainNorm, Side: sideNorm}
	jc.Report("processing", 80)
	return nil
}

// RulesStage applies deterministic repairs and structural validation (C9).
type RulesStage struct{}

func (RulesStage) Name() string  { return "rules" }
func (RulesStage) Enabled() bool { return true }

func (RulesStage) Run(ctx context.Context, jc *JobContext) error {
	rules.RepairLandsMiscount(&jc.Deck)
	if err := rules.ValidateAndFill(&jc.Deck); err != nil {
		return errs.New(errs.Validation, "deck failed structural validation: "+err.Error())
	}
	jc.Report("processing", 100)
	return nil
}
