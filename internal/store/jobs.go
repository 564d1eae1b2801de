package store

import (
	"database/sql"
	"fmt"
	"time"
)

// JobState is the lifecycle state of a job (spec §3).
type JobState string

const (
	JobQueued     JobState = "queued"
	JobRunning    JobState = "running"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
	JobCancelled  JobState = "cancelled"
)

// terminalStates lists the states a job cannot transition out of.
var terminalStates = []JobState{JobCompleted, JobFailed, JobCancelled}

// Job is a persisted record of a single submission through the pipeline.
type Job struct {
	ID             string
	State          JobState
	Progress       float64
	Fingerprint    string
	IdempotencyKey string
	Principal      string
	Metadata       string // JSON blob: recognized PipelineConfig, source info
	Result         string // JSON blob: exported deck + diagnostics, set on completion
	Error          string // JSON blob: typed error payload, set on failure
	CreatedAt      string
	UpdatedAt      string
}

// InsertJob creates a new job row in the queued state.
func (s *Store) InsertJob(j *Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if j.CreatedAt == "" {
		j.CreatedAt = now
	}
	j.UpdatedAt = now

	_, err := s.writer.Exec(`
		INSERT INTO jobs (
			id, state, progress, fingerprint, idempotency_key, principal,
			metadata, result, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.State, j.Progress, j.Fingerprint, j.IdempotencyKey, j.Principal,
		j.Metadata, j.Result, j.Error, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a single job by ID. Returns sql.ErrNoRows if absent.
func (s *Store) GetJob(id string) (*Job, error) {
	j := &Job{}
	err := s.reader.QueryRow(`
		SELECT id, state, progress, fingerprint, idempotency_key, principal,
		       metadata, result, error, created_at, updated_at
		FROM jobs WHERE id = ?`, id,
	).Scan(
		&j.ID, &j.State, &j.Progress, &j.Fingerprint, &j.IdempotencyKey, &j.Principal,
		&j.Metadata, &j.Result, &j.Error, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get job %s: %w", id, err)
	}
	return j, nil
}

// GetJobByFingerprint finds the most recent job matching a fingerprint,
// used by the idempotent-execution path (C12) to short-circuit re-submission.
func (s *Store) GetJobByFingerprint(fingerprint string) (*Job, error) {
	j := &Job{}
	err := s.reader.QueryRow(`
		SELECT id, state, progress, fingerprint, idempotency_key, principal,
		       metadata, result, error, created_at, updated_at
		FROM jobs WHERE fingerprint = ?
		ORDER BY created_at DESC LIMIT 1`, fingerprint,
	).Scan(
		&j.ID, &j.State, &j.Progress, &j.Fingerprint, &j.IdempotencyKey, &j.Principal,
		&j.Metadata, &j.Result, &j.Error, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get job by fingerprint: %w", err)
	}
	return j, nil
}

// UpdateJobProgress advances progress and optionally changes state, but
// refuses the write once the job has reached a terminal state (spec §3).
func (s *Store) UpdateJobProgress(id string, state JobState, progress float64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.writer.Exec(`
		UPDATE jobs SET state = ?, progress = ?, updated_at = ?
		WHERE id = ? AND state NOT IN ('completed','failed','cancelled')`,
		state, progress, now, id,
	)
	if err != nil {
		return fmt.Errorf("store: update job progress: %w", err)
	}
	return checkTerminalGuard(result, id)
}

// CompleteJob marks a job completed and stores its result payload.
func (s *Store) CompleteJob(id, resultJSON string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.writer.Exec(`
		UPDATE jobs SET state = ?, progress = 100, result = ?, updated_at = ?
		WHERE id = ? AND state NOT IN ('completed','failed','cancelled')`,
		JobCompleted, resultJSON, now, id,
	)
	if err != nil {
		return fmt.Errorf("store: complete job: %w", err)
	}
	return checkTerminalGuard(result, id)
}

// FailJob marks a job failed and stores its typed error payload.
func (s *Store) FailJob(id, errorJSON string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.writer.Exec(`
		UPDATE jobs SET state = ?, error = ?, updated_at = ?
		WHERE id = ? AND state NOT IN ('completed','failed','cancelled')`,
		JobFailed, errorJSON, now, id,
	)
	if err != nil {
		return fmt.Errorf("store: fail job: %w", err)
	}
	return checkTerminalGuard(result, id)
}

// CancelJob marks a job cancelled.
func (s *Store) CancelJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.writer.Exec(`
		UPDATE jobs SET state = ?, updated_at = ?
		WHERE id = ? AND state NOT IN ('completed','failed','cancelled')`,
		JobCancelled, now, id,
	)
	if err != nil {
		return fmt.Errorf("store: cancel job: %w", err)
	}
	return checkTerminalGuard(result, id)
}

// checkTerminalGuard distinguishes "already terminal / not found" from a
// true write failure by checking whether the guarded UPDATE touched a row.
func checkTerminalGuard(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: job %s not found or already in a terminal state", id)
	}
	return nil
}

// ListJobsByPrincipal returns jobs attributed to a principal ordered by
// creation time descending, for the export/erasure path (C14).
func (s *Store) ListJobsByPrincipal(principal string, limit int) ([]*Job, error) {
	rows, err := s.reader.Query(`
		SELECT id, state, progress, fingerprint, idempotency_key, principal,
		       metadata, result, error, created_at, updated_at
		FROM jobs WHERE principal = ?
		ORDER BY created_at DESC LIMIT ?`, principal, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list jobs by principal: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		j := &Job{}
		if err := rows.Scan(
			&j.ID, &j.State, &j.Progress, &j.Fingerprint, &j.IdempotencyKey, &j.Principal,
			&j.Metadata, &j.Result, &j.Error, &j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan job row: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list jobs iteration: %w", err)
	}
	return out, nil
}
