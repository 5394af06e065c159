// Package app wires the services into a runnable fiber application
package app

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tracklab/relay/internal/api/v1/handlers"
	"github.com/tracklab/relay/internal/api/v1/middleware"
	v1 "github.com/tracklab/relay/internal/api/v1/routes"
	"github.com/tracklab/relay/internal/events"
	"github.com/tracklab/relay/internal/services"
)

// Options holds the dependencies the application is assembled from
type Options struct {
	JobService   *services.Job
	BatchService *services.Batch
	Bus          *events.Bus
	Heartbeat    time.Duration
}

// New builds the fiber application with middleware and versioned routes
func New(opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})

	app.Use(middleware.Logger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	v1.Register(app, &v1.Handlers{
		Job:    handlers.NewJobHandler(opts.JobService),
		Batch:  handlers.NewBatchHandler(opts.BatchService),
		Stream: handlers.NewStreamHandler(opts.Bus, opts.Heartbeat),
	})

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
