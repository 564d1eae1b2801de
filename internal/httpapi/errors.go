package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gbordes77/screen2deck/internal/errs"
)

// writeError renders an *errs.Error as its JSON body at its conventional
// status code (errs.Error.StatusCode).
func writeError(w http.ResponseWriter, err *errs.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode())
	w.Write(err.ToJSON())
}

// BadRequestError builds a validation-kind error for malformed requests
// this package rejects before reaching the core (missing headers, bad
// path parameters).
func BadRequestError(message string) *errs.Error {
	return errs.New(errs.Validation, message)
}

// RateLimitedError builds a rate-limited error carrying the retry-after
// hint in seconds, mirroring internal/ratelimit's Decision.ResetAt.
func RateLimitedError(retryAfterSeconds float64) *errs.Error {
	return errs.NewRateLimited("rate limit exceeded", retryAfterSeconds)
}

// NotFoundError builds a not-found-kind error for unknown job ids.
func NotFoundError(message string) *errs.Error {
	return errs.New(errs.NotFound, message)
}

// writeJSON writes v as an indent-free JSON body with a 200 status.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeError(w, errs.New(errs.Internal, "encoding response: "+err.Error()))
	}
}
