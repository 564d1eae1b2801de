package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gbordes77/screen2deck/internal/cache"
	"github.com/gbordes77/screen2deck/internal/config"
	"github.com/gbordes77/screen2deck/internal/deck"
	"github.com/gbordes77/screen2deck/internal/idem"
	"github.com/gbordes77/screen2deck/internal/intake"
	"github.com/gbordes77/screen2deck/internal/jobstore"
	"github.com/gbordes77/screen2deck/internal/orchestrator"
	"github.com/gbordes77/screen2deck/internal/pipeline"
	"github.com/gbordes77/screen2deck/internal/progress"
	"github.com/gbordes77/screen2deck/internal/ratelimit"
	"github.com/gbordes77/screen2deck/internal/retention"
	"github.com/gbordes77/screen2deck/internal/store"
	"github.com/gbordes77/screen2deck/internal/testutil"
)

// fakeBackend is an in-memory jobstore.Backend + retention.Backend, built
// the way orchestrator_test.go's fakeBackend is, with GetJob/GetJobByFingerprint
// reporting sql.ErrNoRows on a miss so jobstore.Get's (nil, nil) contract holds.
type fakeBackend struct {
	mu   sync.Mutex
	jobs map[string]*store.Job
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{jobs: make(map[string]*store.Job)}
}

func (b *fakeBackend) InsertJob(j *store.Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now().UTC().Format(time.RFC3339)
	j.CreatedAt, j.UpdatedAt = now, now
	cp := *j
	b.jobs[j.ID] = &cp
	return nil
}

func (b *fakeBackend) GetJob(id string) (*store.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *j
	return &cp, nil
}

func (b *fakeBackend) GetJobByFingerprint(fingerprint string) (*store.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, j := range b.jobs {
		if j.Fingerprint == fingerprint {
			cp := *j
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (b *fakeBackend) UpdateJobProgress(id string, state store.JobState, prog float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[id]
	if !ok {
		return errors.New("not found")
	}
	j.State, j.Progress, j.UpdatedAt = state, prog, time.Now().UTC().Format(time.RFC3339)
	return nil
}

func (b *fakeBackend) CompleteJob(id, resultJSON string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[id]
	if !ok {
		return errors.New("not found")
	}
	j.State, j.Progress, j.Result, j.UpdatedAt = store.JobCompleted, 100, resultJSON, time.Now().UTC().Format(time.RFC3339)
	return nil
}

func (b *fakeBackend) FailJob(id, errorJSON string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[id]
	if !ok {
		return errors.New("not found")
	}
	j.State, j.Error, j.UpdatedAt = store.JobFailed, errorJSON, time.Now().UTC().Format(time.RFC3339)
	return nil
}

func (b *fakeBackend) CancelJob(id string) error { return nil }

func (b *fakeBackend) ListJobsByPrincipal(principal string, limit int) ([]*store.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*store.Job
	for _, j := range b.jobs {
		if j.Principal == principal {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (b *fakeBackend) PruneJobsOlderThan(time.Time) (int64, error)      { return 0, nil }
func (b *fakeBackend) PruneExpiredCache(time.Time) (int64, error)       { return 0, nil }
func (b *fakeBackend) PruneFingerprintsOlderThan(time.Time) (int64, error) { return 0, nil }
func (b *fakeBackend) PruneExpiredIdemLocks(time.Time) (int64, error)   { return 0, nil }

func (b *fakeBackend) DeleteByPrincipal(principal string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	for id, j := range b.jobs {
		if j.Principal == principal {
			delete(b.jobs, id)
			n++
		}
	}
	return n, nil
}

func (b *fakeBackend) GetFingerprint(hash string) (*store.Fingerprint, error) {
	return nil, sql.ErrNoRows
}

func (b *fakeBackend) DeleteJob(id string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.jobs[id]; !ok {
		return 0, nil
	}
	delete(b.jobs, id)
	return 1, nil
}

func (b *fakeBackend) DeleteFingerprint(hash string) (int64, error) { return 0, nil }

type succeedingStage struct{}

func (succeedingStage) Name() string  { return "fake" }
func (succeedingStage) Enabled() bool { return true }
func (succeedingStage) Run(ctx context.Context, jc *pipeline.JobContext) error {
	jc.Deck = deck.Deck{Main: []deck.NormalizedCard{{Quantity: 4, Name: "Lightning Bolt"}}}
	jc.Report("processing", 100)
	return nil
}

// newTestServer wires a Handler-backed httptest.Server over a fake backend,
// mirroring the teacher's mockUpstream/newTestHandler test scaffolding.
func newTestServer(t *testing.T) (*httptest.Server, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	jobs := jobstore.New(backend)
	c, err := cache.New(nil, 64)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	ex := idem.New(c)
	ch := progress.New(orchestrator.Lookup(jobs), progress.Options{})
	chain := pipeline.NewChain(succeedingStage{})
	o := orchestrator.New(jobs, ex, ch, chain, config.PipelineConfig{}, intake.Options{}, 2, nil)

	ret := retention.New(backend, retention.Config{})
	limiter := ratelimit.New()

	srv := NewServer(o, ret, limiter,
		config.AuthConfig{Enabled: false},
		config.RateLimitConfig{Enabled: true, PerMinute: 100, BurstPer5Sec: 20},
		":0", 5*time.Second, 5*time.Second, 30*time.Second, false)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, backend
}

func TestHandleHealth_ReportsOK(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHandleSubmit_RejectsNonImageBody(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Post(ts.URL+"/", "application/octet-stream", bytes.NewReader([]byte("not an image")))
	if err != nil {
		t.Fatalf("POST /: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleSubmit_AcceptsMultipartImageAndReachesCompletion(t *testing.T) {
	ts, backend := newTestServer(t)
	body, contentType := testutil.MultipartImage(t, testutil.SamplePNG(t))

	resp, err := http.Post(ts.URL+"/", contentType, body)
	if err != nil {
		t.Fatalf("POST /: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var submitted submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		t.Fatalf("decoding submit response: %v", err)
	}
	if submitted.JobID == "" {
		t.Fatal("expected a non-empty jobId")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		backend.mu.Lock()
		j := backend.jobs[submitted.JobID]
		backend.mu.Unlock()
		if j != nil && j.State == store.JobCompleted {
			statusResp, err := http.Get(ts.URL + "/status/" + submitted.JobID)
			if err != nil {
				t.Fatalf("GET status: %v", err)
			}
			defer statusResp.Body.Close()
			var st statusResponse
			if err := json.NewDecoder(statusResp.Body).Decode(&st); err != nil {
				t.Fatalf("decoding status response: %v", err)
			}
			if st.State != "completed" {
				t.Fatalf("state = %q, want completed", st.State)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach completed state in time")
}

func TestHandleStatus_UnknownJobReturns404(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/status/00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleExport_RendersEachFormat(t *testing.T) {
	ts, _ := newTestServer(t)
	d := deck.Deck{
		Main: []deck.NormalizedCard{{Quantity: 4, Name: "Lightning Bolt"}},
		Side: []deck.NormalizedCard{{Quantity: 2, Name: "Pyroblast"}},
	}
	reqBody, err := json.Marshal(exportRequest{Deck: d})
	if err != nil {
		t.Fatalf("marshal export request: %v", err)
	}

	for _, format := range []string{"mtga", "moxfield", "archidekt", "tappedout"} {
		resp, err := http.Post(ts.URL+"/export/"+format, "application/json", bytes.NewReader(reqBody))
		if err != nil {
			t.Fatalf("POST export/%s: %v", format, err)
		}
		body, _ := testutil.ReadBody(resp)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("export/%s status = %d, want 200", format, resp.StatusCode)
		}
		if len(body) == 0 {
			t.Fatalf("export/%s returned an empty body", format)
		}
	}
}

func TestHandleExport_UnknownFormatIsBadRequest(t *testing.T) {
	ts, _ := newTestServer(t)
	reqBody, _ := json.Marshal(exportRequest{})
	resp, err := http.Post(ts.URL+"/export/unknown", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatalf("POST export/unknown: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleDeleteIdentifier_RoutesJobAndRejectsGarbage(t *testing.T) {
	ts, backend := newTestServer(t)
	backend.mu.Lock()
	backend.jobs["b6b3e1d2-3c4a-4f5b-8a9c-1d2e3f4a5b6c"] = &store.Job{ID: "b6b3e1d2-3c4a-4f5b-8a9c-1d2e3f4a5b6c", State: store.JobCompleted}
	backend.mu.Unlock()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/data/b6b3e1d2-3c4a-4f5b-8a9c-1d2e3f4a5b6c", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE data: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var deleted deleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&deleted); err != nil {
		t.Fatalf("decoding delete response: %v", err)
	}
	if deleted.Kind != "job" || deleted.Removed != 1 {
		t.Fatalf("deleted = %+v, want kind=job removed=1", deleted)
	}

	req2, _ := http.NewRequest(http.MethodDelete, ts.URL+"/data/not-an-identifier", nil)
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("DELETE garbage data: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp2.StatusCode)
	}
}

func TestRateLimitMiddleware_SetsHeadersAndRejectsOverLimit(t *testing.T) {
	backend := newFakeBackend()
	jobs := jobstore.New(backend)
	c, err := cache.New(nil, 64)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	ex := idem.New(c)
	ch := progress.New(orchestrator.Lookup(jobs), progress.Options{})
	o := orchestrator.New(jobs, ex, ch, pipeline.NewChain(succeedingStage{}), config.PipelineConfig{}, intake.Options{}, 2, nil)
	ret := retention.New(backend, retention.Config{})
	limiter := ratelimit.New()

	srv := NewServer(o, ret, limiter,
		config.AuthConfig{Enabled: false},
		config.RateLimitConfig{Enabled: true, PerMinute: 1, BurstPer5Sec: 1},
		":0", 5*time.Second, 5*time.Second, 30*time.Second, false)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	first, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("first GET: %v", err)
	}
	first.Body.Close()
	if first.Header.Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("X-RateLimit-Limit = %q, want 1", first.Header.Get("X-RateLimit-Limit"))
	}

	second, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("second GET: %v", err)
	}
	defer second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.StatusCode)
	}
}
