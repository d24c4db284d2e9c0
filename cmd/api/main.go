package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"makesta/internal/activity"
	"makesta/internal/auth"
	"makesta/internal/config"
	"makesta/internal/filestore"
	"makesta/internal/handler"
	"makesta/internal/httpmiddleware"
	"makesta/internal/logging"
	"makesta/internal/program"
	"makesta/internal/queue"
	"makesta/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.Production())
	slog.SetDefault(logger)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Error("http server failed", "err", err)
		os.Exit(1)
	}
}

func runHTTP(cfg config.App, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Production() && cfg.JWTSigningKey == "dev-signing-secret-change" {
		return fmt.Errorf("JWT_SIGNING_KEY must be set in production")
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	repo := program.NewRepository(db.Gorm, logger)
	if err := repo.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var redisClient *store.Redis
	if cfg.QueueBackend != "memory" || cfg.RateLimitBackend == "redis" {
		redisClient, err = store.NewRedis(cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(256)
		q = mem
		// No separate worker drains an in-process queue.
		go func() {
			if err := activity.NewRecorder(mem, repo, logger).Run(ctx); err != nil {
				logger.Error("activity recorder stopped", "err", err)
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	files, err := filestore.New(filestore.Options{
		Backend:             cfg.StorageBackend,
		Dir:                 cfg.UploadDir,
		S3Bucket:            cfg.S3Bucket,
		S3Region:            cfg.S3Region,
		S3Endpoint:          cfg.S3Endpoint,
		CloudinaryCloudName: cfg.CloudinaryCloudName,
		CloudinaryAPIKey:    cfg.CloudinaryAPIKey,
		CloudinaryAPISecret: cfg.CloudinaryAPISecret,
		CloudinaryFolder:    cfg.CloudinaryFolder,
	})
	if err != nil {
		return fmt.Errorf("file storage: %w", err)
	}
	logger.Info("file storage ready", "backend", cfg.StorageBackend)

	svc := program.NewService(repo, files, q, logger, program.Options{RequireActiveSession: cfg.RequireActiveSession})
	if err := svc.EnsureOrganizer(ctx, program.OrganizerSeed{
		Username: cfg.OrganizerUsername,
		Password: cfg.OrganizerPassword,
		Email:    cfg.OrganizerEmail,
		FullName: cfg.OrganizerFullName,
	}); err != nil {
		return fmt.Errorf("seed organizer: %w", err)
	}

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitPerMin > 0 {
		if cfg.RateLimitBackend == "redis" {
			limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
		} else {
			limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
		}
	}

	checks := map[string]handler.HealthCheck{"db": db.Healthy}
	if redisClient != nil {
		checks["redis"] = redisClient.Healthy
	}
	issuer := auth.NewIssuer(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.TokenTTL)
	h := handler.New(svc, repo, issuer, logger, handler.Config{
		MaxUploadBytes: cfg.MaxUploadBytes,
		Checks:         checks,
	})
	r := handler.NewRouter(h, handler.RouterOptions{CORSOrigins: cfg.CORSOrigins, AuthLimiter: limiter})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", "err", err)
	}
	logger.Info("server exited")
	return nil
}
