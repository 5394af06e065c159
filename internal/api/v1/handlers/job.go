package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tracklab/relay/internal/db/models"
	"github.com/tracklab/relay/internal/services"
	"github.com/tracklab/relay/internal/types"
)

// JobHandler handles HTTP requests for job operations
type JobHandler struct {
	service *services.Job
}

// NewJobHandler creates a new job handler instance
func NewJobHandler(s *services.Job) *JobHandler {
	return &JobHandler{service: s}
}

// CreateJob handles the request to create a new standalone job
func (h *JobHandler) CreateJob(c *fiber.Ctx) error {
	var req types.CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("invalid request body"))
	}

	id, err := h.service.Create(c.Context(), &req)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(success(types.CreateResponse{ID: id}))
}

// GetJob handles the request to fetch one job
func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("invalid job id"))
	}

	job, err := h.service.Get(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(success(job))
}

// ListJobs handles the request to list jobs
func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	opts := &models.ListOptions{
		Limit:           c.QueryInt("limit", models.DefaultLimit),
		Offset:          c.QueryInt("offset", 0),
		IncludeArchived: c.QueryBool("include_archived", false),
		OwnerID:         c.Query("owner_id"),
		BatchID:         c.Query("batch_id"),
		Status:          c.Query("status"),
	}

	jobs, err := h.service.List(c.Context(), opts)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(success(jobs))
}

// UpdateJobStatus handles a worker reporting a status transition
func (h *JobHandler) UpdateJobStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	var req types.UpdateJobStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("invalid request body"))
	}

	status, err := models.ParseJobStatus(req.Status)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput(err.Error()))
	}

	upd := services.StatusUpdate{
		Progress: req.Progress,
		Results:  req.Results,
		Error:    req.Error,
	}
	if err := h.service.UpdateStatus(c.Context(), id, status, upd); err != nil {
		return respondError(c, err)
	}

	return c.JSON(success(nil))
}

// AddJobLog handles appending one entry to a job's log
func (h *JobHandler) AddJobLog(c *fiber.Ctx) error {
	id := c.Params("id")
	var req types.AddLogRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("invalid request body"))
	}
	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("message is required"))
	}
	if req.Level == "" {
		req.Level = "info"
	}

	if err := h.service.AddLog(c.Context(), id, req.Level, req.Message); err != nil {
		return respondError(c, err)
	}

	return c.JSON(success(nil))
}

// RestartJob handles resetting a job to pending
func (h *JobHandler) RestartJob(c *fiber.Ctx) error {
	if err := h.service.Restart(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(success(nil))
}

// CancelJob handles cancelling a job
func (h *JobHandler) CancelJob(c *fiber.Ctx) error {
	if err := h.service.Cancel(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(success(nil))
}

// ArchiveJob handles archiving a job
func (h *JobHandler) ArchiveJob(c *fiber.Ctx) error {
	if err := h.service.Archive(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(success(nil))
}

// DeleteJob handles hard-deleting a job
func (h *JobHandler) DeleteJob(c *fiber.Ctx) error {
	if err := h.service.Delete(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(success(nil))
}
