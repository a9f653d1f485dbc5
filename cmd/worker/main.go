// Command worker executes queued e-mail, receipt and reminder jobs from Redis.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/BookWise/internal/config"
	"github.com/dharsanguruparan/BookWise/internal/logger"
	"github.com/dharsanguruparan/BookWise/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	lg := logger.New("bookwise-worker", cfg.LogLevel)

	err = run(ctx, cfg, lg)
	stop()
	if err != nil {
		lg.Error("worker stopped", zap.Error(err))
	}
	_ = lg.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, lg *zap.Logger) error {
	if !cfg.UsesRedis() {
		return errors.New("REDIS_ADDR is required for the worker; without Redis the API server runs jobs itself")
	}
	srv, err := server.New(ctx, cfg, lg)
	if err != nil {
		return fmt.Errorf("init worker: %w", err)
	}
	defer srv.Close()

	worker := asynq.NewServer(srv.RedisOpt(), asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Logger:      lg.Named("asynq").Sugar(),
	})
	if err := worker.Start(srv.Processor.Handler()); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	lg.Info("worker started", zap.Int("concurrency", cfg.WorkerConcurrency))
	<-ctx.Done()
	worker.Shutdown()
	return nil
}
