// Package errs defines the typed error taxonomy (§7) shared across the
// pipeline. Each kind carries structured JSON it can render for an HTTP
// response, the way security.RateLimitError does in the proxy stack.
package errs

import "encoding/json"

// Kind enumerates the abstract error taxonomy of §7.
type Kind string

const (
	BadImage            Kind = "bad_image"
	Validation           Kind = "validation_error"
	RateLimited          Kind = "rate_limited"
	NotFound             Kind = "not_found"
	OCRFailed            Kind = "ocr_error"
	ExternalService      Kind = "external_service_error"
	CircuitOpen          Kind = "circuit_open"
	Internal             Kind = "internal_error"
)

// Error is the concrete type for every error kind in the taxonomy. It
// implements error and carries enough structure to render a JSON body.
type Error struct {
	Kind       Kind           `json:"kind"`
	Message    string         `json:"message"`
	RetryAfter float64        `json:"retry_after,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// ToJSON serializes the error to a JSON body suitable for an HTTP response.
func (e *Error) ToJSON() []byte {
	body := map[string]any{"error": e}
	data, _ := json.Marshal(body)
	return data
}

// StatusCode returns the conventional HTTP status for this error's Kind.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case BadImage, Validation:
		return 400
	case RateLimited:
		return 429
	case NotFound:
		return 404
	case OCRFailed, ExternalService, Internal:
		return 500
	case CircuitOpen:
		return 200 // never surfaced to the caller; pipeline proceeds primary-only
	default:
		return 500
	}
}

// New builds an *Error of the given kind with a plain message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf is New with detail fields attached.
func Newf(kind Kind, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// NewRateLimited builds a RateLimited error carrying a retry-after hint.
func NewRateLimited(message string, retryAfter float64) *Error {
	return &Error{Kind: RateLimited, Message: message, RetryAfter: retryAfter}
}

// Is reports whether err itself is an *Error of the given kind. It is a
// plain type assertion: an *Error wrapped inside another error is not
// unwrapped and does not match.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
