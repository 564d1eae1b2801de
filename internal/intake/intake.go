// Package intake implements image submission validation (spec §6): magic-
// byte MIME sniffing, size and dimension bounds, and re-encoding to PNG to
// strip EXIF/ancillary streams before the bytes are fingerprinted.
package intake

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

const (
	MinBytes = 1024
	MinEdge  = 100
	MaxEdge  = 4096
)

// Error classifies an intake rejection (surfaced distinctly per spec §7).
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "intake: " + e.Reason }

// Options bounds the accepted payload (from config: max_image_mib).
type Options struct {
	MaxBytes int
}

// Result is a validated, re-encoded submission ready for fingerprinting.
type Result struct {
	PNGBytes      []byte
	Width, Height int
	SourceFormat  string
}

// Validate sniffs raw's magic bytes, decodes it, enforces the size and
// dimension bounds, and re-encodes it as PNG (spec §6's "re-encoded (PNG)
// after decoding to strip EXIF/ancillary streams").
func Validate(raw []byte, opts Options) (Result, error) {
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	if len(raw) < MinBytes {
		return Result{}, &Error{Reason: fmt.Sprintf("payload smaller than %d bytes", MinBytes)}
	}
	if len(raw) > maxBytes {
		return Result{}, &Error{Reason: fmt.Sprintf("payload exceeds %d byte limit", maxBytes)}
	}

	img, format, err := decodeByMagicBytes(raw)
	if err != nil {
		return Result{}, &Error{Reason: err.Error()}
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < MinEdge || h < MinEdge || w > MaxEdge || h > MaxEdge {
		return Result{}, &Error{Reason: fmt.Sprintf("dimensions %dx%d outside [%d,%d]", w, h, MinEdge, MaxEdge)}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Result{}, fmt.Errorf("intake: re-encoding to PNG: %w", err)
	}

	return Result{PNGBytes: buf.Bytes(), Width: w, Height: h, SourceFormat: format}, nil
}

// decodeByMagicBytes identifies the format from the payload's leading bytes
// rather than trusting a declared content type (spec §6).
func decodeByMagicBytes(raw []byte) (image.Image, string, error) {
	switch {
	case bytes.HasPrefix(raw, []byte{0xFF, 0xD8, 0xFF}):
		img, err := jpeg.Decode(bytes.NewReader(raw))
		return img, "jpeg", err
	case bytes.HasPrefix(raw, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		img, err := png.Decode(bytes.NewReader(raw))
		return img, "png", err
	case bytes.HasPrefix(raw, []byte("GIF87a")) || bytes.HasPrefix(raw, []byte("GIF89a")):
		img, err := gif.Decode(bytes.NewReader(raw))
		return img, "gif", err
	case bytes.HasPrefix(raw, []byte("BM")):
		img, err := bmp.Decode(bytes.NewReader(raw))
		return img, "bmp", err
	case len(raw) > 12 && bytes.HasPrefix(raw, []byte("RIFF")) && bytes.Equal(raw[8:12], []byte("WEBP")):
		img, err := webp.Decode(bytes.NewReader(raw))
		return img, "webp", err
	case bytes.HasPrefix(raw, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(raw, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		img, err := tiff.Decode(bytes.NewReader(raw))
		return img, "tiff", err
	default:
		return nil, "", fmt.Errorf("unrecognized image format")
	}
}
