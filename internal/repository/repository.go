package repository

import (
	"context"
	"errors"
	"time"

	"zerodte/internal/models"
)

var (
	// ErrRunConflict means an unforced running or successful run already holds the (job, market day) slot.
	ErrRunConflict = errors.New("job run already claimed for market day")
	ErrJobNotFound = errors.New("job not found")
	// ErrRunFinalized is returned when finishing a run that is no longer running.
	ErrRunFinalized = errors.New("job run already finalized")
)

type JobRepository interface {
	ListJobs(ctx context.Context) ([]models.Job, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	UpsertJob(ctx context.Context, item *models.Job) error
	SetJobEnabled(ctx context.Context, id string, enabled bool) error
	UpdateJobLastRun(ctx context.Context, id string, at time.Time, status models.RunStatus) error
}

type RunRepository interface {
	FindSuccessfulRun(ctx context.Context, jobID string, marketDay string) (*models.JobRun, error)
	// ClaimRun inserts a running record. Unforced claims fail with ErrRunConflict when the
	// slot is taken; the check and the insert are one atomic step.
	ClaimRun(ctx context.Context, item *models.JobRun) error
	InsertRun(ctx context.Context, item *models.JobRun) error
	FinishRun(ctx context.Context, item *models.JobRun) error
	GetRun(ctx context.Context, id string) (*models.JobRun, error)
	ListRuns(ctx context.Context, params ListRunsParams) ([]models.JobRun, error)
	// FailStaleRuns marks running records started before the cutoff as failed and returns them.
	FailStaleRuns(ctx context.Context, startedBefore time.Time, now time.Time, message string) ([]models.JobRun, error)
}

type Repository interface {
	JobRepository
	RunRepository
}

type ListRunsParams struct {
	JobID  string
	Status string
	Limit  int
}
