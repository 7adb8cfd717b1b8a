package scheduler

import (
	"context"
	"time"
)

// Sweeper exports periods still waiting for the sheet.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// DraftPurger removes drafts older than a maximum age.
type DraftPurger interface {
	PurgeStale(ctx context.Context, maxAge time.Duration) (int, error)
}

// ExportSweepJob retries pending sheet exports whose message was lost.
type ExportSweepJob struct {
	sweeper Sweeper
}

func NewExportSweepJob(s Sweeper) *ExportSweepJob {
	return &ExportSweepJob{sweeper: s}
}

func (j *ExportSweepJob) Name() string { return "export_sweep" }

func (j *ExportSweepJob) Run(ctx context.Context) error {
	_, err := j.sweeper.Sweep(ctx)
	return err
}

// DraftPurgeJob deletes recovery drafts nobody came back to.
type DraftPurgeJob struct {
	purger DraftPurger
	maxAge time.Duration
}

func NewDraftPurgeJob(p DraftPurger, maxAge time.Duration) *DraftPurgeJob {
	return &DraftPurgeJob{purger: p, maxAge: maxAge}
}

func (j *DraftPurgeJob) Name() string { return "draft_purge" }

func (j *DraftPurgeJob) Run(ctx context.Context) error {
	_, err := j.purger.PurgeStale(ctx, j.maxAge)
	return err
}
