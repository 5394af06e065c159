package services

import (
	"context"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tracklab/relay/internal/db/models"
	"github.com/tracklab/relay/internal/db/repos"
	"github.com/tracklab/relay/internal/events"
	"github.com/tracklab/relay/internal/types"
)

// ServiceTestSuite provides the shared wiring for lifecycle engine tests
type ServiceTestSuite struct {
	suite.Suite
	db           *gorm.DB
	ctx          context.Context
	jobRepo      *repos.JobRepository
	batchRepo    *repos.BatchRepository
	bus          *events.Bus
	jobService   *Job
	batchService *Batch
}

func (s *ServiceTestSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_json=1"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err, "Failed to create in-memory database")

	err = db.AutoMigrate(&models.Job{}, &models.Batch{})
	require.NoError(s.T(), err, "Failed to run database migrations")

	s.db = db
	s.ctx = context.Background()
	s.jobRepo = repos.NewJobRepository(db)
	s.batchRepo = repos.NewBatchRepository(db)
	s.bus = events.NewBus()
	s.batchService = NewBatchService(s.batchRepo, s.jobRepo, s.bus)
	s.jobService = NewJobService(s.jobRepo, s.batchService, s.bus)
}

func (s *ServiceTestSuite) TearDownTest() {
	sqlDB, err := s.db.DB()
	if err == nil && sqlDB != nil {
		_ = sqlDB.Close()
	}
}

// Helper methods

func (s *ServiceTestSuite) createJob() string {
	id, err := s.jobService.Create(s.ctx, &types.CreateJobRequest{
		OwnerID: "owner-1",
		JobSpec: types.JobSpec{
			Params: models.JobParams{"type": "transcription", "event": "summer-fest", "track": "stage-a"},
		},
	})
	s.Require().NoError(err)
	return id
}

func (s *ServiceTestSuite) createBatch(jobs int) (string, []string) {
	specs := make([]types.JobSpec, 0, jobs)
	for i := 0; i < jobs; i++ {
		specs = append(specs, types.JobSpec{
			Params: models.JobParams{"type": "ocr", "language": "en"},
		})
	}
	batchID, err := s.batchService.Create(s.ctx, &types.CreateBatchRequest{
		OwnerID: "owner-1",
		Name:    "test-batch",
		Jobs:    specs,
	})
	s.Require().NoError(err)

	members, err := s.jobRepo.ListByBatch(s.ctx, batchID)
	s.Require().NoError(err)
	s.Require().Len(members, jobs)

	ids := make([]string, 0, jobs)
	for _, j := range members {
		ids = append(ids, j.ID)
	}
	return batchID, ids
}

func (s *ServiceTestSuite) getJob(id string) *models.Job {
	job, err := s.jobRepo.GetByID(s.ctx, id)
	s.Require().NoError(err)
	return job
}

func (s *ServiceTestSuite) getBatch(id string) *models.Batch {
	batch, err := s.batchRepo.GetByID(s.ctx, id)
	s.Require().NoError(err)
	return batch
}
