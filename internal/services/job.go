package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tracklab/relay/internal/db/models"
	"github.com/tracklab/relay/internal/db/repos"
	"github.com/tracklab/relay/internal/events"
	"github.com/tracklab/relay/internal/logger"
	"github.com/tracklab/relay/internal/types"
)

// StatusUpdate carries the optional payloads a worker may attach to a status
// transition. Nil fields leave the stored value untouched.
type StatusUpdate struct {
	Progress *models.Progress
	Results  json.RawMessage
	Error    *models.JobError
}

// Job provides business logic for job lifecycle operations. Every successful
// mutation publishes an update on the bus, and mutations of batch members
// trigger a reconciliation of the owning batch.
type Job struct {
	jobRepo *repos.JobRepository
	batch   *Batch
	bus     *events.Bus
}

// NewJobService creates a new job service instance
func NewJobService(jobRepo *repos.JobRepository, batch *Batch, bus *events.Bus) *Job {
	return &Job{jobRepo: jobRepo, batch: batch, bus: bus}
}

// Create validates the request and creates a new PENDING job. Batch totals are
// fixed at batch creation time, so creating a job never mutates a batch.
func (s *Job) Create(ctx context.Context, req *types.CreateJobRequest) (string, error) {
	job, err := buildJob(req.OwnerID, "", req.JobSpec)
	if err != nil {
		return "", err
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	return job.ID, nil
}

// Get retrieves a job by its ID
func (s *Job) Get(ctx context.Context, id string) (*models.Job, error) {
	return s.jobRepo.GetByID(ctx, id)
}

// List retrieves a paginated list of jobs
func (s *Job) List(ctx context.Context, opts *models.ListOptions) ([]models.Job, error) {
	return s.jobRepo.List(ctx, opts)
}

// UpdateStatus applies a status transition: processing_started_at is set on
// the first transition into
// PROCESSING, completed_at on transitions into COMPLETED or FAILED, and any
// supplied progress/results/error payloads are merged in. Writing the status a
// job already has is permitted; it still bumps updated_at and still triggers
// batch reconciliation. Transitions out of a terminal status are rejected;
// Restart is the only way back to PENDING.
func (s *Job) UpdateStatus(ctx context.Context, id string, status models.JobStatus, upd StatusUpdate) error {
	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	// Terminal states leave only through an explicit restart. This also keeps
	// a worker's late progress report from resurrecting a job an operator
	// cancelled or failed mid-execution.
	if job.Status.IsTerminal() && status != job.Status {
		return fmt.Errorf("%w: job %s is %s and cannot move to %s without a restart",
			models.ErrValidation, id, job.Status, status)
	}

	now := time.Now().UTC()
	job.Status = status
	job.UpdatedAt = now

	if status == models.JobStatusProcessing && job.ProcessingStartedAt == nil {
		job.ProcessingStartedAt = &now
	}
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		job.CompletedAt = &now
	}
	if upd.Progress != nil {
		job.Progress = upd.Progress
	}
	if upd.Results != nil {
		job.Results = upd.Results
	}
	if upd.Error != nil {
		job.Error = upd.Error
	}

	if err := s.jobRepo.Update(ctx, job); err != nil {
		return err
	}

	s.publish(job, events.EventStatus, "")
	s.reconcileOwner(ctx, job)
	return nil
}

// AddLog appends one timestamped entry to the job's log and bumps updated_at.
// It never affects status.
func (s *Job) AddLog(ctx context.Context, id, level, message string) error {
	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	job.Logs = append(job.Logs, models.LogEntry{Timestamp: now, Level: level, Message: message})
	job.UpdatedAt = now

	if err := s.jobRepo.Update(ctx, job); err != nil {
		return err
	}

	s.publish(job, events.EventLog, message)
	return nil
}

// Restart resets a job to PENDING, clearing the terminal-state fields while
// leaving created_at, params, and the append-only log untouched.
func (s *Job) Restart(ctx context.Context, id string) error {
	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	resetToPending(job, time.Now().UTC())
	if err := s.jobRepo.Update(ctx, job); err != nil {
		return err
	}

	s.publish(job, events.EventRestart, "")
	s.reconcileOwner(ctx, job)
	return nil
}

// Cancel marks a job CANCELLED. There is no worker preemption: the owning
// worker is expected to notice the status change between phases and abandon
// the work itself.
func (s *Job) Cancel(ctx context.Context, id string) error {
	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	job.Status = models.JobStatusCancelled
	job.UpdatedAt = time.Now().UTC()
	if err := s.jobRepo.Update(ctx, job); err != nil {
		return err
	}

	s.publish(job, events.EventStatus, "")
	s.reconcileOwner(ctx, job)
	return nil
}

// Archive hides a job from default listings without deleting it
func (s *Job) Archive(ctx context.Context, id string) error {
	return s.jobRepo.UpdateFields(ctx, id, map[string]interface{}{
		"archived":               true,
		models.UpdatedAtField: time.Now().UTC(),
	})
}

// Delete hard-deletes a job. The parent batch's total_jobs is deliberately
// left untouched; the next reconciliation simply recomputes the status buckets
// over the remaining jobs.
func (s *Job) Delete(ctx context.Context, id string) error {
	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.jobRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.publish(job, events.EventDeleted, "")
	s.reconcileOwner(ctx, job)
	return nil
}

func (s *Job) publish(job *models.Job, eventType events.EventType, message string) {
	update := events.JobUpdate{
		Type:         eventType,
		JobID:        job.ID,
		Status:       job.Status,
		UpdatedAt:    job.UpdatedAt,
		Progress:     job.Progress,
		Message:      message,
		Result:       job.Results,
		BatchID:      job.BatchID,
		SourceItemID: job.SourceItemID,
	}
	if job.Progress != nil {
		update.Phase = job.Progress.Phase
	}
	if message == "" && job.Error != nil {
		update.Message = job.Error.Message
	}
	s.bus.Publish(update)
}

// reconcileOwner recomputes the owning batch's counters after a member
// mutation. Reconciliation failures are logged, not returned: the write
// already committed and a later pass converges the counters.
func (s *Job) reconcileOwner(ctx context.Context, job *models.Job) {
	if job.BatchID == "" {
		return
	}
	if err := s.batch.Reconcile(ctx, job.BatchID); err != nil {
		logger.Errorf("Failed to reconcile batch %s after job %s mutation: %v", job.BatchID, job.ID, err)
	}
}

// buildJob assembles a new PENDING job document from a spec
func buildJob(ownerID, batchID string, spec types.JobSpec) (*models.Job, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner_id is required", models.ErrValidation)
	}
	if len(spec.Params) == 0 {
		return nil, fmt.Errorf("%w: params are required", models.ErrValidation)
	}

	name := spec.Name
	if name == "" {
		name = deriveName(spec.Params)
	}

	now := time.Now().UTC()
	return &models.Job{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		BatchID:      batchID,
		SourceItemID: spec.SourceItemID,
		Name:         name,
		Status:       models.JobStatusPending,
		Params:       spec.Params,
		Logs:         models.LogEntries{},
		Access:       models.DefaultAccessControl(ownerID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// deriveName builds a human-readable name from the event/track/session
// parameters, skipping empty parts
func deriveName(params models.JobParams) string {
	parts := make([]string, 0, 3)
	for _, key := range []string{"event", "track", "session"} {
		if v := params[key]; v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("job-%s", time.Now().Format("20060102-150405"))
	}
	return strings.Join(parts, " - ")
}

// resetToPending clears the terminal-state fields of a job in place. Logs are
// append-only history and survive the reset.
func resetToPending(job *models.Job, now time.Time) {
	job.Status = models.JobStatusPending
	job.ProcessingStartedAt = nil
	job.CompletedAt = nil
	job.Error = nil
	job.Progress = nil
	job.Results = nil
	job.UpdatedAt = now
}
