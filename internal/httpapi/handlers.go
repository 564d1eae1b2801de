package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gbordes77/screen2deck/internal/deck"
	"github.com/gbordes77/screen2deck/internal/errs"
	"github.com/gbordes77/screen2deck/internal/export"
	"github.com/gbordes77/screen2deck/internal/intake"
	"github.com/gbordes77/screen2deck/internal/orchestrator"
	"github.com/gbordes77/screen2deck/internal/progress"
	"github.com/gbordes77/screen2deck/internal/retention"
)

// maxUploadBytes bounds the multipart body read before intake validation
// runs its own size check, mirroring the teacher's handler body-limit
// pattern in proxy/handler.go.
const maxUploadBytes = 32 << 20 // 32 MiB; intake.Validate enforces the real bound

// Handler implements the spec §6 routes against the orchestrator and
// retention engine, the way the teacher's ProxyHandler wraps the router.
type Handler struct {
	orch      *orchestrator.Orchestrator
	retention *retention.Engine
}

// submitResponse is the §6 submission response body.
type submitResponse struct {
	JobID  string `json:"jobId"`
	Cached bool   `json:"cached"`
}

// HandleSubmit implements `POST <image>`: multipart upload, magic-byte
// sniffing and bounds checking happen inside intake.Validate, called
// from Orchestrator.Submit.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	raw, err := readSubmittedImage(r)
	if err != nil {
		writeError(w, BadRequestError(err.Error()))
		return
	}

	principal := principalFromContext(r.Context())
	metadata := r.URL.Query().Get("options")

	jobID, cached, err := h.orch.Submit(r.Context(), raw, principal, metadata)
	if err != nil {
		writeOrchestratorError(w, err)
		return
	}

	writeJSON(w, submitResponse{JobID: jobID, Cached: cached})
}

// readSubmittedImage accepts either a multipart form field named "image"
// or a raw request body, matching the flexible intake the teacher's own
// upload handlers accept.
func readSubmittedImage(r *http.Request) ([]byte, error) {
	contentType := r.Header.Get("Content-Type")
	if len(contentType) >= len("multipart/") && contentType[:len("multipart/")] == "multipart/" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, fmt.Errorf("parsing multipart form: %w", err)
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, fmt.Errorf("reading image field: %w", err)
		}
		defer file.Close()
		return io.ReadAll(file)
	}
	return io.ReadAll(r.Body)
}

// statusResponse is the §6 status response body.
type statusResponse struct {
	State    string          `json:"state"`
	Progress float64         `json:"progress"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    json.RawMessage `json:"error,omitempty"`
}

// HandleStatus implements `GET status/<jobId>`.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := h.orch.Status(jobID)
	if err != nil {
		writeError(w, errs.New(errs.Internal, err.Error()))
		return
	}
	if job == nil {
		writeError(w, NotFoundError("unknown job id"))
		return
	}
	resp := statusResponse{State: string(job.State), Progress: job.Progress}
	if job.Result != "" {
		resp.Result = json.RawMessage(job.Result)
	}
	if job.Error != "" {
		resp.Error = json.RawMessage(job.Error)
	}
	writeJSON(w, resp)
}

// HandleProgress implements the §6 progress subscription as a one-way
// chunked HTTP stream of JSON frames: no websocket library exists anywhere
// in this codebase's dependency set, so the subscription is served the
// way the teacher's own StreamSession serves its SSE fan-out. The query
// parameters "ping" and "status" mimic the client-originated control
// frames a true duplex channel would carry inbound.
func (h *Handler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errs.New(errs.Internal, "streaming unsupported by this response writer"))
		return
	}

	sub := h.orch.Subscribe(jobID)
	defer sub.Close()

	if r.URL.Query().Has("ping") {
		sub.Ping()
	}
	if r.URL.Query().Has("status") {
		sub.RequestStatus()
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, open := <-sub.Frames():
			if !open {
				return
			}
			if err := writeFrame(w, frame); err != nil {
				return
			}
			flusher.Flush()
			if frame.Terminal() || frame.CloseReason != "" {
				return
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, frame progress.Frame) error {
	body, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	body = append(body, '\n')
	_, err = w.Write(body)
	return err
}

// exportRequest is the §6 export request body: a resolved deck to render.
type exportRequest struct {
	Deck deck.Deck `json:"deck"`
}

// HandleExport implements `POST export/<format>`.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	format := export.Format(chi.URLParam(r, "format"))

	var req exportRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
		writeError(w, BadRequestError("decoding export body: "+err.Error()))
		return
	}

	body, err := export.Export(format, req.Deck)
	if err != nil {
		writeError(w, BadRequestError(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(body))
}

// deleteResponse is the §6 retention-API delete response body.
type deleteResponse struct {
	Identifier string `json:"identifier"`
	Kind       string `json:"kind"`
	Removed    int64  `json:"removed"`
}

// HandleDeleteIdentifier implements `DELETE data/<identifier>`.
func (h *Handler) HandleDeleteIdentifier(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identifier")

	kind, n, err := h.retention.DeleteIdentifier(id)
	if err != nil {
		writeError(w, BadRequestError(err.Error()))
		return
	}

	kindName := "job"
	if kind == retention.IdentifierFingerprint {
		kindName = "fingerprint"
	}
	writeJSON(w, deleteResponse{Identifier: id, Kind: kindName, Removed: n})
}

// HandleExportPrincipal implements the GDPR export path (spec §4.14),
// returning every job attributable to a principal.
func (h *Handler) HandleExportPrincipal(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")
	body, err := h.retention.ExportJSON(principal)
	if err != nil {
		writeError(w, errs.New(errs.Internal, err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// HandleErasePrincipal implements the GDPR erasure path (spec §4.14).
func (h *Handler) HandleErasePrincipal(w http.ResponseWriter, r *http.Request) {
	principal := chi.URLParam(r, "principal")
	n, err := h.retention.Erase(principal)
	if err != nil {
		writeError(w, errs.New(errs.Internal, err.Error()))
		return
	}
	writeJSON(w, map[string]int64{"removed": n})
}

// HandleHealth reports liveness unconditionally, mirroring the teacher's
// proxy HandleHealth.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

// HandleReady reports readiness; the core has no external dependency to
// probe beyond the store it was constructed with, so readiness mirrors
// liveness here.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ready"})
}

// writeOrchestratorError renders an orchestrator error, unwrapping an
// *errs.Error to its typed status code, mapping intake rejections to
// bad_image (400), and falling back to 500 for anything else.
func writeOrchestratorError(w http.ResponseWriter, err error) {
	if e, ok := err.(*errs.Error); ok {
		writeError(w, e)
		return
	}
	if ie, ok := err.(*intake.Error); ok {
		writeError(w, errs.New(errs.BadImage, ie.Error()))
		return
	}
	writeError(w, errs.New(errs.Internal, err.Error()))
}
