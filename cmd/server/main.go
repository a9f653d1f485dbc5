// Command server runs the BookWise HTTP API. Without Redis it also executes
// background jobs in process.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

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
	lg := logger.New("bookwise-api", cfg.LogLevel)

	err = run(ctx, cfg, lg)
	stop()
	if err != nil {
		lg.Error("server stopped", zap.Error(err))
	}
	_ = lg.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, lg *zap.Logger) error {
	srv, err := server.New(ctx, cfg, lg)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	defer srv.Close()
	return srv.Serve(ctx)
}
