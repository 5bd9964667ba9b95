// Package main runs the background job worker that delivers queued WhatsApp invitations.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/smartinvite/backend/config"
	"github.com/smartinvite/backend/internal/messaging"
	"github.com/smartinvite/backend/internal/realtime"
	"github.com/smartinvite/backend/internal/worker"
	"github.com/smartinvite/backend/pkg/database"
	"github.com/smartinvite/backend/pkg/queue"
	"github.com/smartinvite/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	evolution := messaging.NewEvolutionClient(messaging.EvolutionOptions{
		BaseURL:       cfg.Evolution.BaseURL,
		Token:         cfg.Evolution.Token,
		WebhookSecret: cfg.Evolution.WebhookSecret,
		WebhookBase:   cfg.Evolution.WebhookBase,
		Timeout:       time.Duration(cfg.Evolution.TimeoutSeconds) * time.Second,
	}, logger)

	// No dashboards connect here; delivery updates reach the API instances through Redis.
	hub := realtime.NewHub(logger, realtime.NewRedisPubSub(rdb.Client, logger), nil)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewMessageProcessor(jobQueue, messaging.NewRepository(pool), evolution, hub, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(done)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
