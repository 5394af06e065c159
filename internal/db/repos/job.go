package repos

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tracklab/relay/internal/db/models"
)

// JobRepository provides access to job-related database operations
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new job repository instance
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create creates a new job in the database
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("%w: missing job id", models.ErrValidation)
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).Where(&models.Job{ID: id}).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// Update persists every field of an existing job
func (r *JobRepository) Update(ctx context.Context, job *models.Job) error {
	res := r.db.WithContext(ctx).Save(job)
	if res.Error != nil {
		return fmt.Errorf("failed to update job: %w", res.Error)
	}
	return nil
}

// UpdateFields applies a partial update to a job by id
func (r *JobRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where(&models.Job{ID: id}).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update job fields: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// Delete hard-deletes a job by id
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Job{ID: id})
	if res.Error != nil {
		return fmt.Errorf("failed to delete job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// DeleteByBatch hard-deletes every job belonging to the given batch and
// returns the number of deleted rows
func (r *JobRepository) DeleteByBatch(ctx context.Context, batchID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("batch_id = ?", batchID).Delete(&models.Job{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete batch jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// List returns jobs matching the given options, newest first.
// Archived jobs are excluded unless opts.IncludeArchived is set.
func (r *JobRepository) List(ctx context.Context, opts *models.ListOptions) ([]models.Job, error) {
	opts.Normalize()

	qry := &models.Job{OwnerID: opts.OwnerID, BatchID: opts.BatchID}
	if opts.Status != "" {
		status, err := models.ParseJobStatus(opts.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
		}
		qry.Status = status
	}

	db := r.db.WithContext(ctx).Model(&models.Job{}).Where(qry)
	if !opts.IncludeArchived {
		db = db.Where("archived = ?", false)
	}

	var jobs []models.Job
	err := db.Limit(opts.Limit).Offset(opts.Offset).
		Order(models.CreatedAtField + " DESC").
		Find(&jobs).Error
	return jobs, err
}

// ListByBatch returns every job belonging to the given batch, oldest first
func (r *JobRepository) ListByBatch(ctx context.Context, batchID string) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order(models.CreatedAtField + " ASC").
		Find(&jobs).Error
	return jobs, err
}

// ListClaimable returns up to limit non-archived pending jobs, oldest first
func (r *JobRepository) ListClaimable(ctx context.Context, limit int) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.WithContext(ctx).
		Where("status = ? AND archived = ?", models.JobStatusPending, false).
		Order(models.CreatedAtField + " ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// ListActive returns every non-archived job that has not reached a terminal
// status, used by the bulk administrative sweeps
func (r *JobRepository) ListActive(ctx context.Context) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.WithContext(ctx).
		Where("archived = ? AND status IN ?", false,
			[]models.JobStatus{models.JobStatusPending, models.JobStatusProcessing}).
		Find(&jobs).Error
	return jobs, err
}

// ListNonArchived returns every non-archived job regardless of status
func (r *JobRepository) ListNonArchived(ctx context.Context) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.WithContext(ctx).Where("archived = ?", false).Find(&jobs).Error
	return jobs, err
}

// CountByStatus counts the jobs of one batch grouped by status. The result is
// the ground truth the batch counters are reconciled against.
func (r *JobRepository) CountByStatus(ctx context.Context, batchID string) (models.StatusCounts, error) {
	type row struct {
		Status models.JobStatus
		N      int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.Job{}).
		Select("status, count(*) as n").
		Where("batch_id = ?", batchID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return models.StatusCounts{}, fmt.Errorf("failed to count batch jobs: %w", err)
	}

	var counts models.StatusCounts
	for _, r := range rows {
		switch r.Status {
		case models.JobStatusCompleted:
			counts.Completed = r.N
		case models.JobStatusFailed:
			counts.Failed = r.N
		case models.JobStatusPending:
			counts.Pending = r.N
		case models.JobStatusProcessing:
			counts.Processing = r.N
		case models.JobStatusCancelled:
			// Cancelled jobs count as failed for aggregation purposes
			counts.Failed += r.N
		}
	}
	return counts, nil
}
