package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/tracklab/relay/internal/db/models"
	"github.com/tracklab/relay/internal/events"
	"github.com/tracklab/relay/internal/types"
)

type JobServiceTestSuite struct {
	ServiceTestSuite
}

func TestJobService(t *testing.T) {
	suite.Run(t, new(JobServiceTestSuite))
}

func (s *JobServiceTestSuite) TestCreateDerivesName() {
	id, err := s.jobService.Create(s.ctx, &types.CreateJobRequest{
		OwnerID: "owner-1",
		JobSpec: types.JobSpec{
			Params: models.JobParams{
				"type":    "transcription",
				"event":   "summer-fest",
				"track":   "stage-a",
				"session": "take-2",
			},
		},
	})
	s.Require().NoError(err)

	job := s.getJob(id)
	s.Equal("summer-fest - stage-a - take-2", job.Name)
	s.Equal(models.JobStatusPending, job.Status)
	s.True(job.Access.CanAdmin("owner-1"))
}

func (s *JobServiceTestSuite) TestCreateSkipsEmptyNameParts() {
	id, err := s.jobService.Create(s.ctx, &types.CreateJobRequest{
		OwnerID: "owner-1",
		JobSpec: types.JobSpec{
			Params: models.JobParams{"type": "ocr", "event": "summer-fest", "session": "take-1"},
		},
	})
	s.Require().NoError(err)
	s.Equal("summer-fest - take-1", s.getJob(id).Name)
}

func (s *JobServiceTestSuite) TestCreateValidation() {
	_, err := s.jobService.Create(s.ctx, &types.CreateJobRequest{
		JobSpec: types.JobSpec{Params: models.JobParams{"type": "ocr"}},
	})
	s.ErrorIs(err, models.ErrValidation)

	_, err = s.jobService.Create(s.ctx, &types.CreateJobRequest{OwnerID: "owner-1"})
	s.ErrorIs(err, models.ErrValidation)
}

func (s *JobServiceTestSuite) TestCompletedAtSetOnlyOnTerminal() {
	id := s.createJob()

	s.Require().NoError(s.jobService.UpdateStatus(s.ctx, id, models.JobStatusProcessing, StatusUpdate{}))
	job := s.getJob(id)
	s.Nil(job.CompletedAt)
	s.NotNil(job.ProcessingStartedAt)

	s.Require().NoError(s.jobService.UpdateStatus(s.ctx, id, models.JobStatusCompleted, StatusUpdate{}))
	job = s.getJob(id)
	s.NotNil(job.CompletedAt)
}

func (s *JobServiceTestSuite) TestProcessingStartedAtSetOnce() {
	id := s.createJob()

	s.Require().NoError(s.jobService.UpdateStatus(s.ctx, id, models.JobStatusProcessing, StatusUpdate{}))
	first := s.getJob(id).ProcessingStartedAt
	s.Require().NotNil(first)

	// A repeated processing write keeps the original claim time
	s.Require().NoError(s.jobService.UpdateStatus(s.ctx, id, models.JobStatusProcessing, StatusUpdate{}))
	s.Equal(first.UnixNano(), s.getJob(id).ProcessingStartedAt.UnixNano())
}

func (s *JobServiceTestSuite) TestNoOpStatusStillBumpsUpdatedAt() {
	id := s.createJob()
	before := s.getJob(id).UpdatedAt

	time.Sleep(5 * time.Millisecond)
	s.Require().NoError(s.jobService.UpdateStatus(s.ctx, id, models.JobStatusPending, StatusUpdate{}))

	job := s.getJob(id)
	s.Equal(models.JobStatusPending, job.Status)
	s.True(job.UpdatedAt.After(before))
}

func (s *JobServiceTestSuite) TestUpdateStatusRejectsLeavingTerminal() {
	id := s.createJob()
	s.Require().NoError(s.jobService.UpdateStatus(s.ctx, id, models.JobStatusProcessing, StatusUpdate{}))
	s.Require().NoError(s.jobService.UpdateStatus(s.ctx, id, models.JobStatusFailed, StatusUpdate{
		Error: &models.JobError{Code: "boom", Message: "exploded"},
	}))

	err := s.jobService.UpdateStatus(s.ctx, id, models.JobStatusProcessing, StatusUpdate{
		Progress: &models.Progress{Percent: 90, Phase: "transcribe"},
	})
	s.ErrorIs(err, models.ErrValidation)

	// The terminal record is untouched by the rejected write
	job := s.getJob(id)
	s.Equal(models.JobStatusFailed, job.Status)
	s.NotNil(job.CompletedAt)
	s.Require().NotNil(job.Error)
	s.Equal("boom", job.Error.Code)

	err = s.jobService.UpdateStatus(s.ctx, id, models.JobStatusPending, StatusUpdate{})
	s.ErrorIs(err, models.ErrValidation)
	s.Equal(models.JobStatusFailed, s.getJob(id).Status)

	// Restart is the only way out of a terminal state
	s.Require().NoError(s.jobService.Restart(s.ctx, id))
	s.Equal(models.JobStatusPending, s.getJob(id).Status)
}

func (s *JobServiceTestSuite) TestUpdateStatusAllowsTerminalRewrite() {
	id := s.createJob()
	s.Require().NoError(s.jobService.UpdateStatus(s.ctx, id, models.JobStatusCompleted, StatusUpdate{}))

	// Re-reporting the same terminal status merges payloads
	result := json.RawMessage(`{"text":"final"}`)
	s.Require().NoError(s.jobService.UpdateStatus(s.ctx, id, models.JobStatusCompleted, StatusUpdate{Results: result}))

	job := s.getJob(id)
	s.Equal(models.JobStatusCompleted, job.Status)
	s.JSONEq(`{"text":"final"}`, string(job.Results))
}

func (s *JobServiceTestSuite) TestUpdateStatusMissingJob() {
	err := s.jobService.UpdateStatus(s.ctx, "missing", models.JobStatusCompleted, StatusUpdate{})
	s.ErrorIs(err, models.ErrNotFound)
}

func (s *JobServiceTestSuite) TestRestartIsTrueReset() {
	// Job A: processing then completed, then restarted and completed again
	a := s.createJob()
	s.Require().NoError(s.jobService.UpdateStatus(s.ctx, a, models.JobStatusProcessing, StatusUpdate{
		Progress: &models.Progress{Percent: 50, Phase: "transcribe"},
	}))
	s.Require().NoError(s.jobService.UpdateStatus(s.ctx, a, models.JobStatusFailed, StatusUpdate{
		Error: &models.JobError{Code: "boom", Message: "exploded"},
	}))
	s.Require().NoError(s.jobService.Restart(s.ctx, a))

	restarted := s.getJob(a)
	s.Equal(models.JobStatusPending, restarted.Status)
	s.Nil(restarted.ProcessingStartedAt)
	s.Nil(restarted.CompletedAt)
	s.Nil(restarted.Error)
	s.Nil(restarted.Progress)
	s.Nil(restarted.Results)

	// Completing after restart matches a direct pending->processing->completed run
	result := json.RawMessage(`{"text":"hello"}`)
	s.Require().NoError(s.jobService.UpdateStatus(s.ctx, a, models.JobStatusProcessing, StatusUpdate{}))
	s.Require().NoError(s.jobService.UpdateStatus(s.ctx, a, models.JobStatusCompleted, StatusUpdate{Results: result}))

	b := s.createJob()
	s.Require().NoError(s.jobService.UpdateStatus(s.ctx, b, models.JobStatusProcessing, StatusUpdate{}))
	s.Require().NoError(s.jobService.UpdateStatus(s.ctx, b, models.JobStatusCompleted, StatusUpdate{Results: result}))

	jobA, jobB := s.getJob(a), s.getJob(b)
	s.Equal(jobB.Status, jobA.Status)
	s.JSONEq(string(jobB.Results), string(jobA.Results))
	s.Nil(jobA.Error)
	s.NotNil(jobA.ProcessingStartedAt)
	s.NotNil(jobA.CompletedAt)
}

func (s *JobServiceTestSuite) TestRestartKeepsLogs() {
	id := s.createJob()
	s.Require().NoError(s.jobService.AddLog(s.ctx, id, "info", "starting up"))
	s.Require().NoError(s.jobService.UpdateStatus(s.ctx, id, models.JobStatusFailed, StatusUpdate{}))
	s.Require().NoError(s.jobService.Restart(s.ctx, id))

	job := s.getJob(id)
	s.Len(job.Logs, 1)
	s.Equal("starting up", job.Logs[0].Message)
}

func (s *JobServiceTestSuite) TestAddLogDoesNotAffectStatus() {
	id := s.createJob()
	s.Require().NoError(s.jobService.AddLog(s.ctx, id, "warn", "low disk"))

	job := s.getJob(id)
	s.Equal(models.JobStatusPending, job.Status)
	s.Require().Len(job.Logs, 1)
	s.Equal("warn", job.Logs[0].Level)
}

func (s *JobServiceTestSuite) TestCancelLeavesCompletedAtUnset() {
	id := s.createJob()
	s.Require().NoError(s.jobService.UpdateStatus(s.ctx, id, models.JobStatusProcessing, StatusUpdate{}))
	s.Require().NoError(s.jobService.Cancel(s.ctx, id))

	job := s.getJob(id)
	s.Equal(models.JobStatusCancelled, job.Status)
	s.True(job.Status.IsTerminal())
	s.Nil(job.CompletedAt)
}

func (s *JobServiceTestSuite) TestArchiveHidesFromListing() {
	id := s.createJob()
	s.Require().NoError(s.jobService.Archive(s.ctx, id))

	job := s.getJob(id)
	s.True(job.Archived)

	jobs, err := s.jobService.List(s.ctx, &models.ListOptions{OwnerID: "owner-1"})
	s.NoError(err)
	for _, j := range jobs {
		s.NotEqual(id, j.ID)
	}
}

func (s *JobServiceTestSuite) TestMutationsPublishUpdates() {
	ch, cancel := s.bus.Subscribe()
	defer cancel()

	id := s.createJob()
	s.Require().NoError(s.jobService.UpdateStatus(s.ctx, id, models.JobStatusProcessing, StatusUpdate{
		Progress: &models.Progress{Percent: 10, Phase: "decode"},
	}))

	update := <-ch
	s.Equal(events.EventStatus, update.Type)
	s.Equal(id, update.JobID)
	s.Equal(models.JobStatusProcessing, update.Status)
	s.Equal("decode", update.Phase)
	s.Require().NotNil(update.Progress)
	s.Equal(float64(10), update.Progress.Percent)

	s.Require().NoError(s.jobService.Delete(s.ctx, id))
	update = <-ch
	s.Equal(events.EventDeleted, update.Type)
	s.Equal(id, update.JobID)
}
