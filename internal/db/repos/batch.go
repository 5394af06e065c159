package repos

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tracklab/relay/internal/db/models"
)

// BatchRepository provides access to batch-related database operations
type BatchRepository struct {
	db *gorm.DB
}

// NewBatchRepository creates a new batch repository instance
func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create creates a new batch in the database
func (r *BatchRepository) Create(ctx context.Context, batch *models.Batch) error {
	if batch.ID == "" {
		return fmt.Errorf("%w: missing batch id", models.ErrValidation)
	}
	return r.db.WithContext(ctx).Create(batch).Error
}

// GetByID retrieves a batch by its ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*models.Batch, error) {
	var batch models.Batch
	err := r.db.WithContext(ctx).Where(&models.Batch{ID: id}).First(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("batch %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return &batch, nil
}

// Update persists every field of an existing batch
func (r *BatchRepository) Update(ctx context.Context, batch *models.Batch) error {
	res := r.db.WithContext(ctx).Save(batch)
	if res.Error != nil {
		return fmt.Errorf("failed to update batch: %w", res.Error)
	}
	return nil
}

// UpdateFields applies a partial update to a batch by id
func (r *BatchRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Batch{}).
		Where(&models.Batch{ID: id}).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update batch fields: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("batch %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// Delete hard-deletes a batch by id
func (r *BatchRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Batch{ID: id})
	if res.Error != nil {
		return fmt.Errorf("failed to delete batch: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("batch %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// List returns batches matching the given options, newest first.
// Archived batches are excluded unless opts.IncludeArchived is set.
func (r *BatchRepository) List(ctx context.Context, opts *models.ListOptions) ([]models.Batch, error) {
	opts.Normalize()

	qry := &models.Batch{OwnerID: opts.OwnerID}
	if opts.Status != "" {
		status, err := models.ParseBatchStatus(opts.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
		}
		qry.Status = status
	}

	db := r.db.WithContext(ctx).Model(&models.Batch{}).Where(qry)
	if !opts.IncludeArchived {
		db = db.Where("archived = ?", false)
	}

	var batches []models.Batch
	err := db.Limit(opts.Limit).Offset(opts.Offset).
		Order(models.CreatedAtField + " DESC").
		Find(&batches).Error
	return batches, err
}

// ListNonArchived returns every non-archived batch, used by the bulk
// administrative sweeps
func (r *BatchRepository) ListNonArchived(ctx context.Context) ([]models.Batch, error) {
	var batches []models.Batch
	err := r.db.WithContext(ctx).Where("archived = ?", false).Find(&batches).Error
	return batches, err
}
