package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"scitrek/internal/ratelimit"
	"scitrek/internal/usertoken"
	"scitrek/internal/util"
	"scitrek/pkg/queue"
	"scitrek/pkg/storage"
	"scitrek/services/api/internal/app"
	"scitrek/services/api/internal/config"
	"scitrek/services/api/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger("api", cfg.LogLevel)

	blobs, err := newBlobStore(cfg)
	if err != nil {
		log.Fatalf("failed to init blob store: %v", err)
	}

	taskQueue, err := newTaskQueue(cfg)
	if err != nil {
		log.Fatalf("failed to init task queue: %v", err)
	}

	ttl := time.Duration(cfg.TokenTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	tokens, err := usertoken.NewManager(cfg.TokenSecret, ttl)
	if err != nil {
		log.Fatalf("failed to init token manager: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL: cfg.DatabaseURL,
		Blobs:       blobs,
		Queue:       taskQueue,
		Tokens:      tokens,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		Tokens:         tokens,
		LoginLimiter:   newLoginLimiter(cfg, logger),
		MaxUploadBytes: cfg.MaxUploadMB << 20,
		TrustForwarded: cfg.TrustForwarded,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("api server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

// newLoginLimiter builds the Redis-backed login limiter when one is
// configured; without a limit the endpoint runs unthrottled.
func newLoginLimiter(cfg config.FileConfig, logger *slog.Logger) *ratelimit.FixedWindowLimiter {
	if cfg.LoginRateLimit <= 0 {
		return nil
	}
	window := time.Duration(cfg.LoginRateWindowSecs) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "scitrek:login", cfg.LoginRateLimit, window)
	if err != nil {
		logger.Warn("login rate limiter disabled", "err", err)
		return nil
	}
	return limiter
}

func newBlobStore(cfg config.FileConfig) (storage.BlobStore, error) {
	if cfg.StorageDriver == "file" {
		return storage.NewFileStore(cfg.FileStoragePath)
	}
	return storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
}

func newTaskQueue(cfg config.FileConfig) (queue.TaskQueue, error) {
	if cfg.QueueName == "" {
		cfg.QueueName = "scitrek:tasks"
	}
	if cfg.QueueDriver == "amqp" {
		return queue.NewAMQPTaskQueue(queue.AMQPQueueConfig{
			URL:   cfg.AMQPURL,
			Queue: cfg.QueueName,
		})
	}
	return queue.NewRedisTaskQueue(queue.RedisQueueConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   cfg.QueueName,
	})
}
