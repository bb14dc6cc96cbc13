package main

import (
	"context"
	"log"
	"time"

	"legal-ai-assistant/internal/app"
	"legal-ai-assistant/internal/config"
	"legal-ai-assistant/internal/logger"
	"legal-ai-assistant/internal/queue"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if !cfg.RedisEnabled {
		log.Fatal("The ingest worker requires Redis (REDIS_ENABLED=true)")
	}

	// The worker only ingests; it never answers questions or scrapes updates.
	cfg.LLMDisabled = true
	cfg.UpdatesEnabled = false

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(startCtx, cfg)
	cancel()
	if err != nil {
		log.Fatal("Failed to initialize application:", err)
	}
	defer a.Close(context.Background())

	redisOpt, err := cfg.AsynqRedisOpt()
	if err != nil {
		log.Fatal("Invalid Redis configuration:", err)
	}

	concurrency := 4
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queue.QueueCritical: 6,
				queue.QueueDefault:  3,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Error("Task failed",
					"type", task.Type(),
					"retry", retried,
					"max_retry", maxRetry,
					"error", err,
				)
			}),
		},
	)

	processor := queue.NewTaskProcessor(a.Documents, a.Extractor)
	mux := asynq.NewServeMux()
	processor.Register(mux)

	logger.Info("Starting ingest worker",
		"concurrency", concurrency,
		"queues", []string{queue.QueueCritical, queue.QueueDefault},
		"collection", a.Documents.Collection(),
	)

	// Run blocks until SIGTERM/SIGINT
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
