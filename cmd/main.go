package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/tracklab/relay/config"
	"github.com/tracklab/relay/internal/app"
	"github.com/tracklab/relay/internal/db"
	"github.com/tracklab/relay/internal/db/models"
	"github.com/tracklab/relay/internal/db/repos"
	"github.com/tracklab/relay/internal/events"
	"github.com/tracklab/relay/internal/logger"
	"github.com/tracklab/relay/internal/services"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		logger.Fatalf("Error loading .env file: %v", err)
	}
	logger.InitializeAndConfigure()

	database, err := db.New(db.Options{
		Host:     config.GetEnv("DB_HOST", ""),
		User:     config.GetEnv("DB_USER", ""),
		Password: config.GetEnv("DB_PASSWORD", ""),
		DBName:   config.GetEnv("DB_NAME", ""),
		Port:     config.GetEnvInt("DB_PORT", 0),
	})
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	jobRepo := repos.NewJobRepository(database)
	batchRepo := repos.NewBatchRepository(database)

	bus := events.NewBus()
	batchService := services.NewBatchService(batchRepo, jobRepo, bus)
	jobService := services.NewJobService(jobRepo, batchService, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Mirror bus events across processes when redis is configured
	if redisURL := config.GetEnv("REDIS_URL", ""); redisURL != "" {
		bridge, err := events.NewBridge(bus, redisURL, config.GetEnv("REDIS_CHANNEL", ""))
		if err != nil {
			logger.Fatalf("Failed to create redis bridge: %v", err)
		}
		if err := bridge.Ping(ctx); err != nil {
			logger.Fatalf("Failed to reach redis: %v", err)
		}
		bridge.Start(ctx)
		defer func() { _ = bridge.Close() }()
	}

	// The dev worker completes jobs without doing real work; actual
	// transformation providers plug in through the same Executor interface.
	var wg sync.WaitGroup
	if config.GetEnv("WORKER_ENABLED", "false") == "true" {
		wg.Add(1)
		go services.LaunchWorker(ctx, &wg, jobService, jobRepo, devExecutor())
	}

	application := app.New(app.Options{
		JobService:   jobService,
		BatchService: batchService,
		Bus:          bus,
	})

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("Shutting down...")
		cancel()
		_ = application.Shutdown()
	}()

	addr := ":" + config.GetEnv("PORT", "8080")
	if err := application.Listen(addr); err != nil {
		logger.Errorf("Server stopped: %v", err)
	}
	wg.Wait()
}

func devExecutor() services.Executor {
	return services.ExecutorFunc(func(_ context.Context, job *models.Job, report func(models.Progress)) (json.RawMessage, error) {
		report(models.Progress{Percent: 100, Phase: "done", Message: "dev executor"})
		return json.RawMessage(`{"dev":true,"job":"` + job.ID + `"}`), nil
	})
}
