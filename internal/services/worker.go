package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/tracklab/relay/internal/db/models"
	"github.com/tracklab/relay/internal/db/repos"
	"github.com/tracklab/relay/internal/logger"
)

// Executor performs the actual transformation work for one job. The report
// callback may be called any number of times to publish intermediate progress.
type Executor interface {
	Execute(ctx context.Context, job *models.Job, report func(models.Progress)) (json.RawMessage, error)
}

// ExecutorFunc adapts a function to the Executor interface
type ExecutorFunc func(ctx context.Context, job *models.Job, report func(models.Progress)) (json.RawMessage, error)

// Execute implements Executor
func (f ExecutorFunc) Execute(ctx context.Context, job *models.Job, report func(models.Progress)) (json.RawMessage, error) {
	return f(ctx, job, report)
}

// LaunchWorker launches a goroutine that claims pending jobs and executes
// them, reporting status through the job service. There is no preemption: a
// cancel or restart only rewrites the ledger, so the worker re-reads the job
// between claim and completion and abandons work whose stored status it no
// longer owns.
func LaunchWorker(ctx context.Context, wg *sync.WaitGroup, jobService *Job, jobRepo *repos.JobRepository, executor Executor) {
	defer wg.Done()
	const claimLimit = 10
	const backoff = time.Second

	logger.Info("Worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Worker received shutdown signal, stopping...")
			return
		default:
		}

		jobs, err := jobRepo.ListClaimable(ctx, claimLimit)
		if err != nil {
			logger.Errorf("Worker error fetching jobs: %v", err)
			time.Sleep(backoff)
			continue
		}

		if len(jobs) == 0 {
			time.Sleep(backoff)
			continue
		}

		for i := range jobs {
			select {
			case <-ctx.Done():
				return
			default:
			}
			runJob(ctx, jobService, jobRepo, executor, &jobs[i])
		}
	}
}

// runJob executes a single claimed job end to end
func runJob(ctx context.Context, jobService *Job, jobRepo *repos.JobRepository, executor Executor, job *models.Job) {
	if err := jobService.UpdateStatus(ctx, job.ID, models.JobStatusProcessing, StatusUpdate{}); err != nil {
		logger.Warnf("Worker failed to claim job %s: %v", job.ID, err)
		return
	}

	report := func(p models.Progress) {
		err := jobService.UpdateStatus(ctx, job.ID, models.JobStatusProcessing, StatusUpdate{Progress: &p})
		switch {
		case errors.Is(err, models.ErrValidation):
			// The ledger was rewritten under us; drop the report and let the
			// final re-read abandon the job
			logger.Debugf("Worker dropping progress for job %s: no longer processing", job.ID)
		case err != nil:
			logger.Debugf("Worker failed to report progress for job %s: %v", job.ID, err)
		}
	}

	result, execErr := executor.Execute(ctx, job, report)

	// The ledger may have been rewritten while we were working; an abandoned
	// job keeps whatever status the operator gave it.
	current, err := jobRepo.GetByID(ctx, job.ID)
	if err != nil || current.Status != models.JobStatusProcessing {
		logger.Infof("Worker abandoning job %s: no longer processing", job.ID)
		return
	}

	if execErr != nil {
		jobErr := &models.JobError{Code: "worker_failure", Message: execErr.Error()}
		err = jobService.UpdateStatus(ctx, job.ID, models.JobStatusFailed, StatusUpdate{Error: jobErr})
	} else {
		err = jobService.UpdateStatus(ctx, job.ID, models.JobStatusCompleted, StatusUpdate{Results: result})
	}
	if err != nil {
		logger.Errorf("Worker failed to record final status for job %s: %v", job.ID, err)
	}
}
