// Package jobstore implements Job Storage (C11): a narrow domain façade
// over the persistence layer's job records, indexed by fingerprint and
// principal, with the terminal-state immutability the store layer already
// enforces via its guarded UPDATE statements.
package jobstore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gbordes77/screen2deck/internal/store"
)

// State mirrors store.JobState under the jobstore vocabulary.
type State = store.JobState

const (
	Queued    = store.JobQueued
	Running   = store.JobRunning // spec's "processing"
	Completed = store.JobCompleted
	Failed    = store.JobFailed
	Cancelled = store.JobCancelled
)

// Backend is the persistence capability this package needs.
type Backend interface {
	InsertJob(j *store.Job) error
	GetJob(id string) (*store.Job, error)
	GetJobByFingerprint(fingerprint string) (*store.Job, error)
	UpdateJobProgress(id string, state store.JobState, progress float64) error
	CompleteJob(id, resultJSON string) error
	FailJob(id, errorJSON string) error
	CancelJob(id string) error
	ListJobsByPrincipal(principal string, limit int) ([]*store.Job, error)
}

// JobStore is the C11 façade.
type JobStore struct {
	backend Backend
}

// New creates a JobStore over the given Backend.
func New(backend Backend) *JobStore {
	return &JobStore{backend: backend}
}

// Create inserts a new job in the queued state with a fresh UUID.
func (s *JobStore) Create(fingerprint, idempotencyKey, principal, metadataJSON string) (*store.Job, error) {
	j := &store.Job{
		ID:             uuid.NewString(),
		State:          Queued,
		Progress:       0,
		Fingerprint:    fingerprint,
		IdempotencyKey: idempotencyKey,
		Principal:      principal,
		Metadata:       metadataJSON,
	}
	if err := s.backend.InsertJob(j); err != nil {
		return nil, fmt.Errorf("jobstore: create: %w", err)
	}
	return j, nil
}

// Get retrieves a job by id. Returns (nil, nil) if not found.
func (s *JobStore) Get(id string) (*store.Job, error) {
	j, err := s.backend.GetJob(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("jobstore: get %s: %w", id, err)
	}
	return j, nil
}

// FindByFingerprint returns the most recent job for a fingerprint when that
// job is completed, used by C12 to detect idempotency hits. Returns (nil,
// nil) when no job matches or the most recent one is not completed; an
// older completed job behind a newer, unfinished one is not returned.
func (s *JobStore) FindByFingerprint(fingerprint string) (*store.Job, error) {
	j, err := s.backend.GetJobByFingerprint(fingerprint)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("jobstore: find by fingerprint: %w", err)
	}
	if j.State != Completed {
		return nil, nil
	}
	return j, nil
}

// AdvanceProgress moves a job to the given state and progress value in
// [0,100], respecting the monotonic-non-decreasing invariant (spec §3): a
// value below the job's stored progress is refused with an error. The
// store layer also refuses the write once the job is already terminal.
func (s *JobStore) AdvanceProgress(id string, state store.JobState, progress float64) error {
	if cur, err := s.Get(id); err == nil && cur != nil && progress < cur.Progress {
		return fmt.Errorf("jobstore: advance progress: %v is below the current %v", progress, cur.Progress)
	}
	if err := s.backend.UpdateJobProgress(id, state, progress); err != nil {
		return fmt.Errorf("jobstore: advance progress: %w", err)
	}
	return nil
}

// Complete marks a job completed with its result payload.
func (s *JobStore) Complete(id, resultJSON string) error {
	if err := s.backend.CompleteJob(id, resultJSON); err != nil {
		return fmt.Errorf("jobstore: complete: %w", err)
	}
	return nil
}

// Fail marks a job failed with its typed error payload. Per spec §7,
// failures are never cached at the result layer — callers must not also
// write a cache result for a failed job.
func (s *JobStore) Fail(id, errorJSON string) error {
	if err := s.backend.FailJob(id, errorJSON); err != nil {
		return fmt.Errorf("jobstore: fail: %w", err)
	}
	return nil
}

// Cancel marks a job cancelled.
func (s *JobStore) Cancel(id string) error {
	if err := s.backend.CancelJob(id); err != nil {
		return fmt.Errorf("jobstore: cancel: %w", err)
	}
	return nil
}

// ListByPrincipal returns a principal's jobs newest-first, used by the
// retention export/erasure path (C14).
func (s *JobStore) ListByPrincipal(principal string, limit int) ([]*store.Job, error) {
	jobs, err := s.backend.ListJobsByPrincipal(principal, limit)
	if err != nil {
		return nil, fmt.Errorf("jobstore: list by principal: %w", err)
	}
	return jobs, nil
}

// IsTerminal reports whether state is one of the Job state machine's
// terminal states (spec §3).
func IsTerminal(state store.JobState) bool {
	return state == Completed || state == Failed || state == Cancelled
}
