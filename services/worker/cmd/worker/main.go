package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"scitrek/internal/util"
	"scitrek/pkg/queue"
	"scitrek/pkg/storage"
	"scitrek/services/worker/internal/app"
	"scitrek/services/worker/internal/config"
	"scitrek/services/worker/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger("worker", cfg.LogLevel)

	blobs, err := newBlobStore(cfg)
	if err != nil {
		log.Fatalf("failed to init blob store: %v", err)
	}

	taskQueue, err := newTaskQueue(cfg)
	if err != nil {
		log.Fatalf("failed to init task queue: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:     cfg.DatabaseURL,
		Blobs:           blobs,
		SeedConcurrency: cfg.SeedConcurrency,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	concurrency := cfg.QueueConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	taskQueue.Start(ctx, concurrency, appCore.Handle)

	go runDispatchLoop(ctx, appCore, cfg.DispatchIntervalSeconds, logger)

	httpServer, err := server.New(server.Config{
		Queue:               taskQueue,
		InternalTokenSecret: cfg.InternalTokenSecret,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

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

	slog.Info("worker server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

// runDispatchLoop periodically delivers due scheduled messages.
func runDispatchLoop(ctx context.Context, appCore *app.App, intervalSeconds int, logger *slog.Logger) {
	if intervalSeconds <= 0 {
		intervalSeconds = 60
	}
	ticker := time.NewTicker(time.Duration(intervalSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dispatched, err := appCore.DispatchDue(ctx)
			if err != nil {
				logger.Error("dispatch due failed", "err", err)
				continue
			}
			if dispatched > 0 {
				logger.Info("dispatched scheduled messages", "count", dispatched)
			}
		}
	}
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
			URL:        cfg.AMQPURL,
			Queue:      cfg.QueueName,
			MaxRetries: cfg.QueueMaxRetries,
		})
	}
	return queue.NewRedisTaskQueue(queue.RedisQueueConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		Stream:     cfg.QueueName,
		Group:      cfg.QueueGroup,
		MaxRetries: cfg.QueueMaxRetries,
		RetryDelay: time.Duration(cfg.QueueRetryDelaySeconds) * time.Second,
	})
}
