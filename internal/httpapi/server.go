// Package httpapi exposes the core pipeline over HTTP (spec §6): image
// submission, job status, progress streaming, export rendering, and the
// per-identifier retention API. HTTP transport itself sits outside the
// core's scope (§1) — this package is the thin external collaborator that
// wires the core's operations onto the wire, the way the teacher's own
// proxy.Server wires ProxyHandler onto chi.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gbordes77/screen2deck/internal/config"
	"github.com/gbordes77/screen2deck/internal/orchestrator"
	"github.com/gbordes77/screen2deck/internal/ratelimit"
	"github.com/gbordes77/screen2deck/internal/retention"
	"github.com/gbordes77/screen2deck/internal/tracing"
)

// Server is the HTTP server exposing the core over chi, mirroring the
// teacher's proxy.Server shape: bind a configured chi.Router to an
// address, support TLS, and shut down gracefully.
type Server struct {
	router  chi.Router
	handler *Handler
	httpSrv *http.Server
}

// NewServer builds a Server wiring orchestrator and retention onto the
// §6 routes. tracingEnabled mirrors the teacher's OpenTelemetry toggle.
func NewServer(o *orchestrator.Orchestrator, ret *retention.Engine, limiter *ratelimit.Limiter, auth config.AuthConfig, rl config.RateLimitConfig, addr string, readTimeout, writeTimeout, idleTimeout time.Duration, tracingEnabled bool) *Server {
	h := &Handler{orch: o, retention: ret}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(tracing.HTTPMiddleware)
	}
	r.Use(principalMiddleware(auth))
	r.Use(rateLimitMiddleware(limiter, rl))

	r.Get("/health", h.HandleHealth)
	r.Get("/health/ready", h.HandleReady)
	r.Post("/", h.HandleSubmit)
	r.Get("/status/{jobID}", h.HandleStatus)
	r.Get("/progress/{jobID}", h.HandleProgress)
	r.Post("/export/{format}", h.HandleExport)
	r.Delete("/data/{identifier}", h.HandleDeleteIdentifier)
	r.Get("/data/export/{principal}", h.HandleExportPrincipal)
	r.Delete("/data/principal/{principal}", h.HandleErasePrincipal)

	srv := &Server{
		router:  r,
		handler: h,
		httpSrv: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
	}
	return srv
}

// Router returns the underlying chi.Router, useful for testing or
// additional route mounting by the caller.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start begins listening for HTTP connections on the configured address.
// It blocks until the server is shut down or encounters a fatal error.
func (s *Server) Start() error {
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// StartTLS begins listening for HTTPS connections using the given
// certificate and key files.
func (s *Server) StartTLS(certFile, keyFile string) error {
	if err := s.httpSrv.ListenAndServeTLS(certFile, keyFile); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("httpapi server (TLS): %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests to
// complete within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
