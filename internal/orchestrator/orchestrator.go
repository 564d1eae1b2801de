// Package orchestrator wires the Fingerprint, Job Storage, Idempotent
// Execution, Progress Channel, and pipeline Chain components into the
// single async submission-to-completion flow spec §2 describes:
// bytes → C1 → C11 → C12 → C4 → C5(+C6) → C7 → C8 → C9 → stored result →
// C13 emits completion → C10 on demand.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gbordes77/screen2deck/internal/config"
	"github.com/gbordes77/screen2deck/internal/deck"
	"github.com/gbordes77/screen2deck/internal/errs"
	"github.com/gbordes77/screen2deck/internal/fingerprint"
	"github.com/gbordes77/screen2deck/internal/idem"
	"github.com/gbordes77/screen2deck/internal/intake"
	"github.com/gbordes77/screen2deck/internal/jobstore"
	"github.com/gbordes77/screen2deck/internal/pipeline"
	"github.com/gbordes77/screen2deck/internal/progress"
	"github.com/gbordes77/screen2deck/internal/store"
)

// FingerprintRecorder tracks how often a given image fingerprint has been
// seen, independent of the job record itself (store.FingerprintAdapter).
type FingerprintRecorder interface {
	Upsert(hash, idempotencyKey string) error
}

// Outcome is the persisted, JSON-encodable job result.
type Outcome struct {
	Deck       deck.Deck `json:"deck"`
	UsedVision bool      `json:"used_vision"`
	Warnings   []string  `json:"warnings,omitempty"`
}

// Orchestrator ties together job creation, idempotent execution, the
// stage chain, and progress publication for one running process.
type Orchestrator struct {
	jobs     *jobstore.JobStore
	idem     *idem.Executor
	progress *progress.Channel
	chain    *pipeline.Chain
	cfg      config.PipelineConfig
	intake   intake.Options
	workers  chan struct{} // bounded-concurrency semaphore (spec §5)
	softTimeout, hardTimeout time.Duration
	fingerprints FingerprintRecorder
}

// New creates an Orchestrator. maxConcurrentJobs bounds how many pipeline
// executions run at once across the process (spec §5's worker pool).
// fingerprints may be nil; when set, every submission's fingerprint is
// recorded there independent of the job it produced or reused.
func New(jobs *jobstore.JobStore, ex *idem.Executor, ch *progress.Channel, chain *pipeline.Chain, cfg config.PipelineConfig, intakeOpts intake.Options, maxConcurrentJobs int, fingerprints FingerprintRecorder) *Orchestrator {
	if maxConcurrentJobs <= 0 {
		maxConcurrentJobs = 4
	}
	return &Orchestrator{
		jobs:         jobs,
		idem:         ex,
		progress:     ch,
		chain:        chain,
		cfg:          cfg,
		intake:       intakeOpts,
		workers:      make(chan struct{}, maxConcurrentJobs),
		softTimeout:  4 * time.Minute,
		hardTimeout:  5 * time.Minute,
		fingerprints: fingerprints,
	}
}

// Lookup builds a progress.Lookup over a job store. The Channel and the
// Orchestrator have a construction-order cycle — the Channel needs a
// Lookup at construction, and New needs an already-built Channel — so
// callers wire progress.New(orchestrator.Lookup(jobs), ...) before
// calling New.
func Lookup(jobs *jobstore.JobStore) progress.Lookup {
	return func(jobID string) (progress.Frame, bool) {
		job, err := jobs.Get(jobID)
		if err != nil || job == nil {
			return progress.Frame{}, false
		}
		updatedAt, err := time.Parse(time.RFC3339, job.UpdatedAt)
		if err != nil {
			updatedAt = time.Now()
		}
		frame := progress.Frame{
			State:     string(job.State),
			Progress:  job.Progress,
			Timestamp: updatedAt,
		}
		if job.State == store.JobCompleted && job.Result != "" {
			frame.Result = json.RawMessage(job.Result)
		}
		return frame, true
	}
}

// Submit validates raw image bytes, computes its fingerprint/idempotency
// key, creates or finds the job record, and kicks off asynchronous
// processing. It returns the job id and whether this is an idempotency
// cache hit against an already-completed job.
func (o *Orchestrator) Submit(ctx context.Context, raw []byte, principal, metadata string) (jobID string, cached bool, err error) {
	validated, err := intake.Validate(raw, o.intake)
	if err != nil {
		return "", false, err
	}

	fp := fingerprint.Compute(validated.PNGBytes)
	idempotencyKey := fingerprint.IdempotencyKey(fp, o.cfg)
	if o.fingerprints != nil {
		if recErr := o.fingerprints.Upsert(fp, idempotencyKey); recErr != nil {
			log.Warn().Err(recErr).Str("fingerprint", fp).Msg("orchestrator: recording fingerprint failed")
		}
	}

	existing, err := o.jobs.FindByFingerprint(fp)
	if err != nil {
		return "", false, errs.New(errs.Internal, "looking up existing job: "+err.Error())
	}
	if existing != nil {
		return existing.ID, true, nil
	}

	job, err := o.jobs.Create(fp, idempotencyKey, principal, metadata)
	if err != nil {
		return "", false, errs.New(errs.Internal, "creating job: "+err.Error())
	}

	sub := pipeline.Submission{
		ImageBytes: validated.PNGBytes,
		Width:      validated.Width,
		Height:     validated.Height,
		Principal:  principal,
		Metadata:   metadata,
		Config:     o.cfg,
	}

	go o.run(job.ID, idempotencyKey, sub)

	return job.ID, false, nil
}

// run executes the stage chain for one job, under the idempotency lock,
// bounded by the soft/hard execution timeouts (spec §5).
func (o *Orchestrator) run(jobID, idempotencyKey string, sub pipeline.Submission) {
	o.workers <- struct{}{}
	defer func() { <-o.workers }()

	ctx, cancel := context.WithTimeout(context.Background(), o.hardTimeout)
	defer cancel()

	softTimer := time.AfterFunc(o.softTimeout, func() {
		log.Warn().Str("job_id", jobID).Dur("soft_timeout", o.softTimeout).
			Msg("orchestrator: job exceeded the soft pipeline timeout, still running")
	})
	defer softTimer.Stop()

	if err := o.jobs.AdvanceProgress(jobID, store.JobRunning, 5); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("orchestrator: advancing to running failed")
	}
	o.publish(jobID)

	result, err := o.idem.Run(ctx, idempotencyKey, idem.Options{}, func(ctx context.Context) ([]byte, error) {
		jc := &pipeline.JobContext{
			JobID:      jobID,
			Submission: sub,
			Report: func(state string, pct float64) {
				if stateErr := o.jobs.AdvanceProgress(jobID, store.JobState(state), pct); stateErr != nil {
					log.Warn().Err(stateErr).Str("job_id", jobID).Msg("orchestrator: progress update failed")
				}
				o.publish(jobID)
			},
		}
		if err := o.chain.Run(ctx, jc); err != nil {
			return nil, err
		}
		outcome := Outcome{Deck: jc.Deck, UsedVision: jc.UsedVision, Warnings: jc.Warnings}
		return json.Marshal(outcome)
	})

	if err != nil {
		if failErr := o.jobs.Fail(jobID, classifyError(err)); failErr != nil {
			log.Error().Err(failErr).Str("job_id", jobID).Msg("orchestrator: marking job failed")
		}
		o.publish(jobID)
		return
	}

	if completeErr := o.jobs.Complete(jobID, string(result.Value)); completeErr != nil {
		log.Error().Err(completeErr).Str("job_id", jobID).Msg("orchestrator: marking job completed")
	}
	o.publish(jobID)
}

// Status returns a job's current record, or (nil, nil) if it does not exist.
func (o *Orchestrator) Status(jobID string) (*store.Job, error) {
	return o.jobs.Get(jobID)
}

// Subscribe opens a progress subscription for jobID (C13).
func (o *Orchestrator) Subscribe(jobID string) *progress.Subscription {
	return o.progress.Subscribe(jobID)
}

func (o *Orchestrator) publish(jobID string) {
	frame, ok := Lookup(o.jobs)(jobID)
	if !ok {
		return
	}
	o.progress.Publish(jobID, frame)
}

func classifyError(err error) string {
	if e, ok := err.(*errs.Error); ok {
		return string(e.ToJSON())
	}
	body, _ := json.Marshal(map[string]string{"message": fmt.Sprint(err)})
	return string(body)
}
