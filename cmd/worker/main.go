package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"makesta/internal/activity"
	"makesta/internal/config"
	"makesta/internal/logging"
	"makesta/internal/program"
	"makesta/internal/queue"
	"makesta/internal/store"
)

// Worker drains the activity queue into the activity log.
func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.Production()).With("component", "worker")
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		logger.Error("worker needs QUEUE_BACKEND=redis; the memory queue is drained inside the api process")
		os.Exit(1)
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := program.NewRepository(db.Gorm, logger)
	if err := repo.Migrate(ctx); err != nil {
		logger.Error("migrate failed", "err", err)
		os.Exit(1)
	}

	redisClient, err := store.NewRedis(cfg.RedisAddr)
	if err != nil {
		logger.Error("redis config invalid", "err", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet, consumer will retry")
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	if err := activity.NewRecorder(q, repo, logger).Run(ctx); err != nil {
		logger.Error("recorder failed", "err", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
