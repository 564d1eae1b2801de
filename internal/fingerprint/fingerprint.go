// Package fingerprint computes the content-addressed identity of a
// submission (C1): the image fingerprint and the idempotency key derived
// from it and the pipeline configuration in effect.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/gbordes77/screen2deck/internal/config"
)

// Compute returns the SHA-256 hex digest of sanitized image bytes (already
// re-encoded upstream to strip EXIF/ancillary chunks). Stable across runs
// for identical pixel payloads.
func Compute(sanitizedBytes []byte) string {
	sum := sha256.Sum256(sanitizedBytes)
	return hex.EncodeToString(sum[:])
}

// IdempotencyKey derives the 16-hex-char execution identity binding a
// fingerprint to the pipeline configuration that will process it. Two
// submissions with an identical fingerprint and config MUST produce
// identical keys; a config change MUST produce a different key (C3 never
// shares cached OCR across differing configs).
func IdempotencyKey(fp string, cfg config.PipelineConfig) string {
	h := sha256.New()
	h.Write([]byte(fp))
	h.Write(cfg.CanonicalJSON())
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:16]
}
