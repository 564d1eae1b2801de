package pipeline

import "context"

// Stage is one step of the job execution chain (C4 through C9, plus the
// surrounding storage/progress stages). Stages run strictly in order —
// unlike the teacher's bidirectional request/response middleware, a job
// pipeline is one-way: each stage consumes the JobContext state left by
// the previous stage and either advances it or fails the job.
type Stage interface {
	Name() string
	Enabled() bool
	Run(ctx context.Context, jc *JobContext) error
}
