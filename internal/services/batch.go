package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tracklab/relay/internal/db/models"
	"github.com/tracklab/relay/internal/db/repos"
	"github.com/tracklab/relay/internal/events"
	"github.com/tracklab/relay/internal/logger"
	"github.com/tracklab/relay/internal/types"
)

// Batch provides business logic for batch operations, including the
// aggregation step that derives batch counters from member job counts.
type Batch struct {
	batchRepo *repos.BatchRepository
	jobRepo   *repos.JobRepository
	bus       *events.Bus
}

// NewBatchService creates a new batch service instance
func NewBatchService(batchRepo *repos.BatchRepository, jobRepo *repos.JobRepository, bus *events.Bus) *Batch {
	return &Batch{batchRepo: batchRepo, jobRepo: jobRepo, bus: bus}
}

// Create creates a batch and its member jobs. The batch's total_jobs is fixed
// to the number of jobs in the request and is never mutated by job-level
// operations afterwards.
func (s *Batch) Create(ctx context.Context, req *types.CreateBatchRequest) (string, error) {
	if req.OwnerID == "" {
		return "", fmt.Errorf("%w: owner_id is required", models.ErrValidation)
	}
	if req.Name == "" {
		return "", fmt.Errorf("%w: name is required", models.ErrValidation)
	}
	if len(req.Jobs) == 0 {
		return "", fmt.Errorf("%w: a batch needs at least one job", models.ErrValidation)
	}

	// Build every member up front so a bad spec rejects the whole request
	// before anything is persisted; a partial batch could never exhaust.
	now := time.Now().UTC()
	batchID := uuid.NewString()
	jobs := make([]*models.Job, 0, len(req.Jobs))
	for _, spec := range req.Jobs {
		job, err := buildJob(req.OwnerID, batchID, spec)
		if err != nil {
			return "", err
		}
		jobs = append(jobs, job)
	}

	batch := &models.Batch{
		ID:          batchID,
		OwnerID:     req.OwnerID,
		Name:        req.Name,
		Status:      models.BatchStatusPending,
		TotalJobs:   int64(len(jobs)),
		PendingJobs: int64(len(jobs)),
		Access:      models.DefaultAccessControl(req.OwnerID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.batchRepo.Create(ctx, batch); err != nil {
		return "", fmt.Errorf("failed to create batch: %w", err)
	}

	for _, job := range jobs {
		if err := s.jobRepo.Create(ctx, job); err != nil {
			return "", fmt.Errorf("failed to create batch member: %w", err)
		}
	}

	return batch.ID, nil
}

// Get retrieves a batch by its ID
func (s *Batch) Get(ctx context.Context, id string) (*models.Batch, error) {
	return s.batchRepo.GetByID(ctx, id)
}

// List retrieves a paginated list of batches
func (s *Batch) List(ctx context.Context, opts *models.ListOptions) ([]models.Batch, error) {
	return s.batchRepo.List(ctx, opts)
}

// Jobs retrieves every member job of a batch
func (s *Batch) Jobs(ctx context.Context, id string) ([]models.Job, error) {
	return s.jobRepo.ListByBatch(ctx, id)
}

// Reconcile recomputes a batch's counters from a fresh count of its member
// jobs. Counters are always rewritten wholesale, never incremented, which
// makes the operation idempotent and safe to run redundantly or concurrently.
// A missing batch is a no-op: it was deleted while the trigger was in flight.
func (s *Batch) Reconcile(ctx context.Context, id string) error {
	batch, err := s.batchRepo.GetByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	counts, err := s.jobRepo.CountByStatus(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	batch.CompletedJobs = counts.Completed
	batch.FailedJobs = counts.Failed
	batch.PendingJobs = counts.Pending
	batch.ProcessingJobs = counts.Processing
	batch.UpdatedAt = now

	if batch.Exhausted(counts) {
		if counts.Failed > 0 {
			batch.Status = models.BatchStatusFailed
		} else {
			batch.Status = models.BatchStatusCompleted
		}
		if batch.CompletedAt == nil {
			batch.CompletedAt = &now
		}
	} else {
		// A single failed job does not change batch status until the batch is
		// otherwise exhausted.
		batch.Status = models.BatchStatusRunning
		batch.CompletedAt = nil
	}

	return s.batchRepo.Update(ctx, batch)
}

// Restart resets every member job to PENDING and the batch counters to their
// initial values. The per-job resets are independent document operations;
// there is no cross-document transaction. If the sweep is interrupted, a later
// reconciliation converges the counters to the true per-job states.
func (s *Batch) Restart(ctx context.Context, id string) error {
	batch, err := s.batchRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	jobs, err := s.jobRepo.ListByBatch(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i := range jobs {
		job := &jobs[i]
		resetToPending(job, now)
		if err := s.jobRepo.Update(ctx, job); err != nil {
			return fmt.Errorf("failed to reset job %s: %w", job.ID, err)
		}
		s.bus.Publish(events.JobUpdate{
			Type:      events.EventRestart,
			JobID:     job.ID,
			Status:    job.Status,
			UpdatedAt: now,
			BatchID:   id,
		})
	}

	batch.Status = models.BatchStatusPending
	batch.CompletedJobs = 0
	batch.FailedJobs = 0
	batch.ProcessingJobs = 0
	batch.PendingJobs = batch.TotalJobs
	batch.CompletedAt = nil
	batch.UpdatedAt = now
	return s.batchRepo.Update(ctx, batch)
}

// ToggleActive flips the UI-focus bit. It is orthogonal to status and does not
// trigger reconciliation.
func (s *Batch) ToggleActive(ctx context.Context, id string) (bool, error) {
	batch, err := s.batchRepo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	batch.IsActive = !batch.IsActive
	batch.UpdatedAt = time.Now().UTC()
	if err := s.batchRepo.Update(ctx, batch); err != nil {
		return false, err
	}
	return batch.IsActive, nil
}

// Archive hides a batch from default listings without deleting it
func (s *Batch) Archive(ctx context.Context, id string) error {
	return s.batchRepo.UpdateFields(ctx, id, map[string]interface{}{
		"archived":               true,
		models.UpdatedAtField: time.Now().UTC(),
	})
}

// Delete removes a batch together with all of its member jobs
func (s *Batch) Delete(ctx context.Context, id string) error {
	if _, err := s.batchRepo.GetByID(ctx, id); err != nil {
		return err
	}
	deleted, err := s.jobRepo.DeleteByBatch(ctx, id)
	if err != nil {
		return err
	}
	logger.Debugf("Deleted %d jobs of batch %s", deleted, id)
	return s.batchRepo.Delete(ctx, id)
}

// FailAll forces every non-terminal, non-archived job to FAILED with a
// synthetic error, then reconciles each touched batch. This is an operator
// recovery sweep: non-transactional, idempotent per document, and safe to
// interrupt and re-run. It returns the number of jobs it touched.
func (s *Batch) FailAll(ctx context.Context) (int, error) {
	jobs, err := s.jobRepo.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	affected := 0
	touched := make(map[string]struct{})
	for i := range jobs {
		job := &jobs[i]
		now := time.Now().UTC()
		job.Status = models.JobStatusFailed
		job.Error = &models.JobError{
			Code:    "operator_failed",
			Message: "forced to failed by operator sweep",
		}
		job.CompletedAt = &now
		job.UpdatedAt = now
		if err := s.jobRepo.Update(ctx, job); err != nil {
			logger.Warnf("Fail-all: skipping job %s: %v", job.ID, err)
			continue
		}
		affected++
		s.bus.Publish(events.JobUpdate{
			Type:      events.EventStatus,
			JobID:     job.ID,
			Status:    job.Status,
			UpdatedAt: now,
			Message:   job.Error.Message,
			BatchID:   job.BatchID,
		})
		if job.BatchID != "" {
			touched[job.BatchID] = struct{}{}
		}
	}

	s.reconcileAll(ctx, touched)
	return affected, nil
}

// PendingAll resets every non-archived job to PENDING, clearing terminal
// fields, then reconciles each touched batch. An optional target language
// narrows the sweep to jobs whose "language" parameter matches. Like FailAll
// it is non-transactional and safe to re-run; it returns the number of jobs
// it touched.
func (s *Batch) PendingAll(ctx context.Context, targetLanguage string) (int, error) {
	jobs, err := s.jobRepo.ListNonArchived(ctx)
	if err != nil {
		return 0, err
	}

	affected := 0
	touched := make(map[string]struct{})
	for i := range jobs {
		job := &jobs[i]
		if targetLanguage != "" && job.Params["language"] != targetLanguage {
			continue
		}
		now := time.Now().UTC()
		resetToPending(job, now)
		if err := s.jobRepo.Update(ctx, job); err != nil {
			logger.Warnf("Pending-all: skipping job %s: %v", job.ID, err)
			continue
		}
		affected++
		s.bus.Publish(events.JobUpdate{
			Type:      events.EventRestart,
			JobID:     job.ID,
			Status:    job.Status,
			UpdatedAt: now,
			BatchID:   job.BatchID,
		})
		if job.BatchID != "" {
			touched[job.BatchID] = struct{}{}
		}
	}

	s.reconcileAll(ctx, touched)
	return affected, nil
}

func (s *Batch) reconcileAll(ctx context.Context, batchIDs map[string]struct{}) {
	for id := range batchIDs {
		if err := s.Reconcile(ctx, id); err != nil {
			logger.Errorf("Failed to reconcile batch %s during sweep: %v", id, err)
		}
	}
}
