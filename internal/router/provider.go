package router

import (
	"github.com/gbordes77/screen2deck/internal/ocr"
)

// EngineConfig names a registered OCR engine (C5) and its priority in the
// fallback order, generalized from the teacher's per-upstream-LLM
// ProviderConfig into a registry of ocr.Provider implementations.
type EngineConfig struct {
	Name     string
	Provider ocr.Provider
	Enabled  bool
	Priority int
}
