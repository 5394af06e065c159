package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tracklab/relay/internal/db/models"
	"github.com/tracklab/relay/internal/services"
	"github.com/tracklab/relay/internal/types"
)

// BatchHandler handles HTTP requests for batch operations
type BatchHandler struct {
	service *services.Batch
}

// NewBatchHandler creates a new batch handler instance
func NewBatchHandler(s *services.Batch) *BatchHandler {
	return &BatchHandler{service: s}
}

// CreateBatch handles the request to create a batch and its member jobs
func (h *BatchHandler) CreateBatch(c *fiber.Ctx) error {
	var req types.CreateBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("invalid request body"))
	}

	id, err := h.service.Create(c.Context(), &req)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(success(types.CreateResponse{ID: id}))
}

// GetBatch handles the request to fetch one batch
func (h *BatchHandler) GetBatch(c *fiber.Ctx) error {
	batch, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(success(batch))
}

// ListBatches handles the request to list batches
func (h *BatchHandler) ListBatches(c *fiber.Ctx) error {
	opts := &models.ListOptions{
		Limit:           c.QueryInt("limit", models.DefaultLimit),
		Offset:          c.QueryInt("offset", 0),
		IncludeArchived: c.QueryBool("include_archived", false),
		OwnerID:         c.Query("owner_id"),
		Status:          c.Query("status"),
	}

	batches, err := h.service.List(c.Context(), opts)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(success(batches))
}

// GetBatchJobs handles the request to list a batch's member jobs
func (h *BatchHandler) GetBatchJobs(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.service.Get(c.Context(), id); err != nil {
		return respondError(c, err)
	}

	jobs, err := h.service.Jobs(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(success(jobs))
}

// RestartBatch handles resetting every member job to pending
func (h *BatchHandler) RestartBatch(c *fiber.Ctx) error {
	if err := h.service.Restart(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(success(nil))
}

// ToggleBatchActive handles flipping a batch's UI-focus bit
func (h *BatchHandler) ToggleBatchActive(c *fiber.Ctx) error {
	active, err := h.service.ToggleActive(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(success(fiber.Map{"is_active": active}))
}

// ArchiveBatch handles archiving a batch
func (h *BatchHandler) ArchiveBatch(c *fiber.Ctx) error {
	if err := h.service.Archive(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(success(nil))
}

// DeleteBatch handles deleting a batch together with its member jobs
func (h *BatchHandler) DeleteBatch(c *fiber.Ctx) error {
	if err := h.service.Delete(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(success(nil))
}

// FailAllBatches handles the operator sweep that forces every active job to failed
func (h *BatchHandler) FailAllBatches(c *fiber.Ctx) error {
	affected, err := h.service.FailAll(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(success(types.BulkResponse{Affected: affected}))
}

// PendingAllBatches handles the operator sweep that resets every job to pending
func (h *BatchHandler) PendingAllBatches(c *fiber.Ctx) error {
	var req types.PendingAllRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(errInvalidInput("invalid request body"))
		}
	}

	affected, err := h.service.PendingAll(c.Context(), req.TargetLanguage)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(success(types.BulkResponse{Affected: affected}))
}
