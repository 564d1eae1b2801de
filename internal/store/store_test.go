package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openCoreTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpen_Close(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if st.Path() != path {
		t.Errorf("Path: got %q, want %q", st.Path(), path)
	}
	if st.Writer() == nil {
		t.Error("Writer is nil")
	}
	if st.Reader() == nil {
		t.Error("Reader is nil")
	}

	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open with nested dir: %v", err)
	}
	st.Close()
}

func TestPing(t *testing.T) {
	st := openCoreTestStore(t)
	if err := st.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestInsertJob_GetJob(t *testing.T) {
	st := openCoreTestStore(t)

	job := &Job{
		ID:             "job-001",
		State:          JobQueued,
		Fingerprint:    "abc123",
		IdempotencyKey: "idem-001",
		Principal:      "user-1",
		Metadata:       `{"engine":"tesseract"}`,
	}

	if err := st.InsertJob(job); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	got, err := st.GetJob("job-001")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}

	if got.ID != job.ID {
		t.Errorf("ID: got %q, want %q", got.ID, job.ID)
	}
	if got.State != JobQueued {
		t.Errorf("State: got %q, want %q", got.State, JobQueued)
	}
	if got.Fingerprint != job.Fingerprint {
		t.Errorf("Fingerprint: got %q, want %q", got.Fingerprint, job.Fingerprint)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	st := openCoreTestStore(t)

	_, err := st.GetJob("nonexistent")
	if err == nil {
		t.Fatal("expected error for nonexistent job")
	}
}

func TestGetJobByFingerprint(t *testing.T) {
	st := openCoreTestStore(t)

	job := &Job{ID: "job-fp", State: JobQueued, Fingerprint: "fp-shared"}
	if err := st.InsertJob(job); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	got, err := st.GetJobByFingerprint("fp-shared")
	if err != nil {
		t.Fatalf("GetJobByFingerprint: %v", err)
	}
	if got.ID != "job-fp" {
		t.Errorf("ID: got %q, want %q", got.ID, "job-fp")
	}
}

func TestUpdateJobProgress(t *testing.T) {
	st := openCoreTestStore(t)

	job := &Job{ID: "job-prog", State: JobQueued}
	if err := st.InsertJob(job); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	if err := st.UpdateJobProgress("job-prog", JobRunning, 0.5); err != nil {
		t.Fatalf("UpdateJobProgress: %v", err)
	}

	got, err := st.GetJob("job-prog")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != JobRunning {
		t.Errorf("State: got %q, want %q", got.State, JobRunning)
	}
	if got.Progress != 0.5 {
		t.Errorf("Progress: got %v, want 0.5", got.Progress)
	}
}

func TestCompleteJob_ThenImmutable(t *testing.T) {
	st := openCoreTestStore(t)

	job := &Job{ID: "job-done", State: JobRunning}
	if err := st.InsertJob(job); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	if err := st.CompleteJob("job-done", `{"format":"mtga"}`); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	got, err := st.GetJob("job-done")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != JobCompleted {
		t.Errorf("State: got %q, want %q", got.State, JobCompleted)
	}

	// Terminal state is immutable: a further progress update must fail.
	if err := st.UpdateJobProgress("job-done", JobRunning, 0.9); err == nil {
		t.Fatal("expected error updating a completed job")
	}
}

func TestFailJob(t *testing.T) {
	st := openCoreTestStore(t)

	job := &Job{ID: "job-fail", State: JobRunning}
	if err := st.InsertJob(job); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	if err := st.FailJob("job-fail", `{"code":"ocr_error"}`); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	got, err := st.GetJob("job-fail")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != JobFailed {
		t.Errorf("State: got %q, want %q", got.State, JobFailed)
	}
	if got.Error == "" {
		t.Error("expected error payload to be set")
	}
}

func TestListJobsByPrincipal(t *testing.T) {
	st := openCoreTestStore(t)

	for i := 0; i < 5; i++ {
		job := &Job{ID: "p-" + string(rune('a'+i)), State: JobQueued, Principal: "user-x"}
		if err := st.InsertJob(job); err != nil {
			t.Fatalf("InsertJob %d: %v", i, err)
		}
	}
	other := &Job{ID: "other", State: JobQueued, Principal: "user-y"}
	if err := st.InsertJob(other); err != nil {
		t.Fatalf("InsertJob other: %v", err)
	}

	results, err := st.ListJobsByPrincipal("user-x", 10)
	if err != nil {
		t.Fatalf("ListJobsByPrincipal: %v", err)
	}
	if len(results) != 5 {
		t.Errorf("ListJobsByPrincipal: got %d results, want 5", len(results))
	}
}

func TestPruneJobsOlderThan(t *testing.T) {
	st := openCoreTestStore(t)

	oldTime := time.Now().UTC().AddDate(0, 0, -10)
	job := &Job{ID: "job-old", State: JobCompleted, CreatedAt: oldTime.Format(time.RFC3339)}
	if err := st.InsertJob(job); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	// Force updated_at into the past directly (InsertJob always stamps "now").
	if _, err := st.Writer().Exec("UPDATE jobs SET updated_at = ? WHERE id = ?", oldTime.Format(time.RFC3339), "job-old"); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	fresh := &Job{ID: "job-new", State: JobCompleted}
	if err := st.InsertJob(fresh); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -1)
	n, err := st.PruneJobsOlderThan(cutoff)
	if err != nil {
		t.Fatalf("PruneJobsOlderThan: %v", err)
	}
	if n != 1 {
		t.Errorf("PruneJobsOlderThan: got %d rows deleted, want 1", n)
	}

	if _, err := st.GetJob("job-old"); err == nil {
		t.Error("expected job-old to be pruned")
	}
	if _, err := st.GetJob("job-new"); err != nil {
		t.Error("expected job-new to survive pruning")
	}
}

func TestDeleteByPrincipal(t *testing.T) {
	st := openCoreTestStore(t)

	for i := 0; i < 3; i++ {
		job := &Job{ID: "del-" + string(rune('a'+i)), State: JobQueued, Principal: "erase-me"}
		if err := st.InsertJob(job); err != nil {
			t.Fatalf("InsertJob: %v", err)
		}
	}

	n, err := st.DeleteByPrincipal("erase-me")
	if err != nil {
		t.Fatalf("DeleteByPrincipal: %v", err)
	}
	if n != 3 {
		t.Errorf("DeleteByPrincipal: got %d rows deleted, want 3", n)
	}
}

func TestConcurrentReadWrite(t *testing.T) {
	st := openCoreTestStore(t)

	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			job := &Job{ID: "conc-" + string(rune('a'+n)), State: JobQueued}
			if err := st.InsertJob(job); err != nil {
				t.Errorf("concurrent InsertJob %d: %v", n, err)
			}
		}(i)
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = st.ListJobsByPrincipal("", 10)
		}()
	}

	wg.Wait()
}

func TestWALMode(t *testing.T) {
	st := openCoreTestStore(t)

	var mode string
	err := st.Writer().QueryRow("PRAGMA journal_mode").Scan(&mode)
	if err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode: got %q, want %q", mode, "wal")
	}
}

func TestMigrations(t *testing.T) {
	st := openCoreTestStore(t)

	var version int
	err := st.Writer().QueryRow("SELECT MAX(version) FROM migrations").Scan(&version)
	if err != nil {
		t.Fatalf("query migration version: %v", err)
	}

	expected := len(migrations)
	if version != expected {
		t.Errorf("migration version: got %d, want %d", version, expected)
	}
}
