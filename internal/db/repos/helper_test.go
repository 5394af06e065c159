package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tracklab/relay/internal/db/models"
)

// DBRepositoryTestSuite provides a base test suite for repository tests
type DBRepositoryTestSuite struct {
	suite.Suite
	db        *gorm.DB
	ctx       context.Context
	jobRepo   *JobRepository
	batchRepo *BatchRepository
}

func (s *DBRepositoryTestSuite) SetupTest() {
	// Create new in-memory database with JSON support
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_json=1"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err, "Failed to create in-memory database")

	err = db.AutoMigrate(&models.Job{}, &models.Batch{})
	require.NoError(s.T(), err, "Failed to run database migrations")

	s.db = db
	s.jobRepo = NewJobRepository(s.db)
	s.batchRepo = NewBatchRepository(s.db)
	s.ctx = context.Background()
}

func (s *DBRepositoryTestSuite) TearDownTest() {
	sqlDB, err := s.db.DB()
	if err == nil && sqlDB != nil {
		_ = sqlDB.Close()
	}
}

// Helper methods for creating test data

func (s *DBRepositoryTestSuite) createTestJob(batchID string, status models.JobStatus) *models.Job {
	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.NewString(),
		OwnerID:   "owner-1",
		BatchID:   batchID,
		Name:      "summer-fest - stage-a - take-1",
		Status:    status,
		Params:    models.JobParams{"type": "transcription", "event": "summer-fest"},
		Logs:      models.LogEntries{},
		Access:    models.DefaultAccessControl("owner-1"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Require().NoError(s.jobRepo.Create(s.ctx, job))
	return job
}

func (s *DBRepositoryTestSuite) createTestBatch(total int64) *models.Batch {
	now := time.Now().UTC()
	batch := &models.Batch{
		ID:          uuid.NewString(),
		OwnerID:     "owner-1",
		Name:        "test-batch",
		Status:      models.BatchStatusPending,
		TotalJobs:   total,
		PendingJobs: total,
		Access:      models.DefaultAccessControl("owner-1"),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.Require().NoError(s.batchRepo.Create(s.ctx, batch))
	return batch
}
