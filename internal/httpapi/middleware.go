package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gbordes77/screen2deck/internal/config"
	"github.com/gbordes77/screen2deck/internal/ratelimit"
)

// principalCtxKey stashes the trusted principal identifier on the request
// context so handlers can read it without re-parsing headers.
type principalCtxKey struct{}

// principalFromContext returns the principal set by principalMiddleware,
// or "" if none was set.
func principalFromContext(ctx context.Context) string {
	p, _ := ctx.Value(principalCtxKey{}).(string)
	return p
}

// principalMiddleware reads the already-verified principal header (token
// issuance/verification is an external collaborator's job) and stashes it
// on the request context for handlers to read.
func principalMiddleware(auth config.AuthConfig) func(http.Handler) http.Handler {
	header := auth.PrincipalHdr
	if header == "" {
		header = "X-Principal"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := r.Header.Get(header)
			if auth.Enabled && principal == "" {
				writeError(w, BadRequestError("missing principal header"))
				return
			}
			ctx := context.WithValue(r.Context(), principalCtxKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rateLimitMiddleware enforces the per-address sliding window + burst cap
// (C15, spec §4.15), setting the X-RateLimit-* headers on every response
// and rejecting with 429 once the window is exhausted.
func rateLimitMiddleware(limiter *ratelimit.Limiter, cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			addr := clientAddress(r)
			decision := limiter.Check(addr, ratelimit.Limits{PerMinute: cfg.PerMinute, BurstPer5Sec: cfg.BurstPer5Sec})

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.PerMinute))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				retryAfter := time.Until(decision.ResetAt).Seconds()
				if retryAfter < 0 {
					retryAfter = 0
				}
				writeError(w, RateLimitedError(retryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientAddress returns RemoteAddr, which middleware.RealIP has already
// rewritten from X-Forwarded-For/X-Real-IP when present, and falls back to
// the raw X-Forwarded-For header only when RemoteAddr is empty.
func clientAddress(r *http.Request) string {
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return r.Header.Get("X-Forwarded-For")
}
