package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/tracklab/relay/internal/db/models"
)

type WorkerTestSuite struct {
	ServiceTestSuite
}

func TestWorker(t *testing.T) {
	suite.Run(t, new(WorkerTestSuite))
}

func (s *WorkerTestSuite) TestRunJobCompletes() {
	id := s.createJob()
	job := s.getJob(id)

	executor := ExecutorFunc(func(_ context.Context, _ *models.Job, report func(models.Progress)) (json.RawMessage, error) {
		report(models.Progress{Percent: 50, Phase: "transcribe"})
		return json.RawMessage(`{"text":"done"}`), nil
	})

	runJob(s.ctx, s.jobService, s.jobRepo, executor, job)

	got := s.getJob(id)
	s.Equal(models.JobStatusCompleted, got.Status)
	s.JSONEq(`{"text":"done"}`, string(got.Results))
	s.NotNil(got.ProcessingStartedAt)
	s.NotNil(got.CompletedAt)
	s.Require().NotNil(got.Progress)
	s.Equal("transcribe", got.Progress.Phase)
}

func (s *WorkerTestSuite) TestRunJobRecordsFailure() {
	id := s.createJob()
	job := s.getJob(id)

	executor := ExecutorFunc(func(_ context.Context, _ *models.Job, _ func(models.Progress)) (json.RawMessage, error) {
		return nil, errors.New("decode error")
	})

	runJob(s.ctx, s.jobService, s.jobRepo, executor, job)

	got := s.getJob(id)
	s.Equal(models.JobStatusFailed, got.Status)
	s.Require().NotNil(got.Error)
	s.Equal("worker_failure", got.Error.Code)
	s.Equal("decode error", got.Error.Message)
}

func (s *WorkerTestSuite) TestRunJobAbandonsRewrittenLedger() {
	id := s.createJob()
	job := s.getJob(id)

	// The operator cancels mid-execution; the worker must not overwrite the
	// operator's status with its own result.
	executor := ExecutorFunc(func(_ context.Context, _ *models.Job, _ func(models.Progress)) (json.RawMessage, error) {
		s.Require().NoError(s.jobService.Cancel(s.ctx, id))
		return json.RawMessage(`{"text":"late"}`), nil
	})

	runJob(s.ctx, s.jobService, s.jobRepo, executor, job)

	got := s.getJob(id)
	s.Equal(models.JobStatusCancelled, got.Status)
	s.Nil(got.Results)
}

func (s *WorkerTestSuite) TestRunJobProgressAfterCancelDoesNotResurrect() {
	id := s.createJob()
	job := s.getJob(id)

	// The operator cancels mid-execution, then the executor keeps reporting
	// and finishes. Neither the report nor the result may override the
	// operator's status.
	executor := ExecutorFunc(func(_ context.Context, _ *models.Job, report func(models.Progress)) (json.RawMessage, error) {
		s.Require().NoError(s.jobService.Cancel(s.ctx, id))
		report(models.Progress{Percent: 80, Phase: "transcribe"})
		return json.RawMessage(`{"text":"late"}`), nil
	})

	runJob(s.ctx, s.jobService, s.jobRepo, executor, job)

	got := s.getJob(id)
	s.Equal(models.JobStatusCancelled, got.Status)
	s.Nil(got.Results)
	s.Nil(got.CompletedAt)
}

func (s *WorkerTestSuite) TestLaunchWorkerDrainsPending() {
	a := s.createJob()
	b := s.createJob()

	executor := ExecutorFunc(func(_ context.Context, _ *models.Job, _ func(models.Progress)) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})

	ctx, cancel := context.WithCancel(s.ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go LaunchWorker(ctx, &wg, s.jobService, s.jobRepo, executor)

	completed := func(id string) bool {
		job, err := s.jobRepo.GetByID(s.ctx, id)
		return err == nil && job.Status == models.JobStatusCompleted
	}
	s.Eventually(func() bool {
		return completed(a) && completed(b)
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	wg.Wait()
}
