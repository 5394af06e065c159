// Package routes registers the versioned API routes
package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tracklab/relay/internal/api/v1/handlers"
)

// DefaultBaseURL is the default address clients use to reach the API
const DefaultBaseURL = "http://localhost:8080"

// Handlers bundles the handler instances the routes are registered with
type Handlers struct {
	Job    *handlers.JobHandler
	Batch  *handlers.BatchHandler
	Stream *handlers.StreamHandler
}

// SetupRoutes configures all the v1 routes
func SetupRoutes(router fiber.Router, h *Handlers) {
	jobs := router.Group("/jobs")
	jobs.Post("/", h.Job.CreateJob)
	jobs.Get("/", h.Job.ListJobs)
	jobs.Get("/:id", h.Job.GetJob)
	jobs.Post("/:id/status", h.Job.UpdateJobStatus)
	jobs.Post("/:id/logs", h.Job.AddJobLog)
	jobs.Post("/:id/restart", h.Job.RestartJob)
	jobs.Post("/:id/cancel", h.Job.CancelJob)
	jobs.Post("/:id/archive", h.Job.ArchiveJob)
	jobs.Delete("/:id", h.Job.DeleteJob)

	batches := router.Group("/batches")
	batches.Post("/", h.Batch.CreateBatch)
	batches.Get("/", h.Batch.ListBatches)
	batches.Get("/:id", h.Batch.GetBatch)
	batches.Get("/:id/jobs", h.Batch.GetBatchJobs)
	batches.Post("/:id/restart", h.Batch.RestartBatch)
	batches.Post("/:id/toggle-active", h.Batch.ToggleBatchActive)
	batches.Post("/:id/archive", h.Batch.ArchiveBatch)
	batches.Delete("/:id", h.Batch.DeleteBatch)

	admin := router.Group("/admin")
	admin.Post("/fail-all", h.Batch.FailAllBatches)
	admin.Post("/pending-all", h.Batch.PendingAllBatches)

	router.Get("/events", h.Stream.Events)
}

// Register registers the v1 routes
func Register(app *fiber.App, h *Handlers) {
	v1Group := app.Group("/api/v1")
	SetupRoutes(v1Group, h)
}
