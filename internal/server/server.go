// Package server wires configuration into a running BookWise process: the
// database, cache, queue, receipt store, services and HTTP API. The API
// binary, the worker and the CLI all build their dependencies here.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/BookWise/internal/accounts"
	"github.com/dharsanguruparan/BookWise/internal/analytics"
	"github.com/dharsanguruparan/BookWise/internal/api"
	"github.com/dharsanguruparan/BookWise/internal/cache"
	"github.com/dharsanguruparan/BookWise/internal/catalog"
	"github.com/dharsanguruparan/BookWise/internal/circulation"
	"github.com/dharsanguruparan/BookWise/internal/config"
	"github.com/dharsanguruparan/BookWise/internal/database"
	"github.com/dharsanguruparan/BookWise/internal/inventory"
	"github.com/dharsanguruparan/BookWise/internal/metrics"
	"github.com/dharsanguruparan/BookWise/internal/notify"
	"github.com/dharsanguruparan/BookWise/internal/processing"
	"github.com/dharsanguruparan/BookWise/internal/queue"
	"github.com/dharsanguruparan/BookWise/internal/ratelimit"
	"github.com/dharsanguruparan/BookWise/internal/receipt"
	"github.com/dharsanguruparan/BookWise/internal/repository"
	"github.com/dharsanguruparan/BookWise/internal/s3storage"
	"github.com/dharsanguruparan/BookWise/internal/signing"
	"github.com/dharsanguruparan/BookWise/internal/worker"
)

// Server holds every constructed component. Exported fields are the
// services the binaries drive directly.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	db     *database.DB
	rdb    *redis.Client
	client *asynq.Client
	pool   *processing.Pool
	once   sync.Once

	Store       *repository.Store
	Metrics     *metrics.Metrics
	Circulation *circulation.Service
	Catalog     *catalog.Service
	Accounts    *accounts.Service
	Analytics   *analytics.Service
	Receipts    *receipt.Materializer
	Dispatcher  *notify.Dispatcher
	Processor   *worker.Processor
	API         *api.Server
}

// New connects to the configured backends, migrates the schema and builds
// the services. Without Redis the queue, cache and rate limiter run in
// process.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, logger: logger, Metrics: metrics.New()}
	if err := s.build(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) build(ctx context.Context) error {
	cfg := s.cfg
	db, err := database.Open(ctx, cfg, s.logger.Named("database"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	s.db = db
	if err := database.Migrate(ctx, db.DB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	s.Store = repository.New(db.DB)
	ledger := inventory.NewLedger(db.DB, s.logger.Named("inventory"))

	var (
		c       cache.Cache
		limiter ratelimit.Limiter
		q       queue.Enqueuer
	)
	if cfg.UsesRedis() {
		s.rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		c = cache.NewRedis(s.rdb)
		limiter = ratelimit.WithFallback(ratelimit.NewRedis(s.rdb), ratelimit.NewLocal(), s.logger.Named("ratelimit"))
		s.client = asynq.NewClient(s.RedisOpt())
		q = queue.NewClient(s.client)
	} else {
		c = cache.NewMemory()
		limiter = ratelimit.NewLocal()
		s.pool = processing.New(cfg.WorkerConcurrency, s.logger.Named("processing"))
		q = s.pool
		s.logger.Info("redis not configured, using in-process queue, cache and rate limiter")
	}

	docs, err := s.receiptStore(ctx)
	if err != nil {
		return err
	}
	sender, err := s.sender()
	if err != nil {
		return err
	}

	s.Receipts = receipt.NewMaterializer(s.Store, docs, signing.NewSigner(cfg.SigningSecret), s.logger.Named("receipt"), receipt.Options{
		PublicBaseURL: cfg.PublicBaseURL,
		LinkTTL:       cfg.ReceiptURLTTL,
	})
	s.Dispatcher = notify.NewDispatcher(q, s.Metrics, s.logger.Named("notify"), notify.Options{
		AppURL:       cfg.PublicBaseURL,
		ReminderHour: cfg.ReminderHour,
		Location:     cfg.Location,
	})
	s.Circulation = circulation.NewService(s.Store, ledger, c, s.Metrics, s.logger.Named("circulation"), circulation.Options{
		LoanPeriodDays:      cfg.LoanPeriodDays,
		Location:            cfg.Location,
		AdminOverrideNotify: cfg.AdminOverrideNotify,
	})
	s.Circulation.Subscribe(s.Dispatcher)
	s.Catalog = catalog.NewService(s.Store, ledger, c, s.logger.Named("catalog"))
	s.Accounts = accounts.NewService(s.Store, ledger, c, s.Dispatcher, s.logger.Named("accounts"))
	s.Analytics = analytics.NewService(s.Store, c, s.logger.Named("analytics"), analytics.Options{Location: cfg.Location})
	s.Processor = worker.NewProcessor(s.Store, s.Receipts, s.Dispatcher, sender, s.logger.Named("worker"))

	s.API = api.New(cfg, api.Deps{
		Circulation: s.Circulation,
		Catalog:     s.Catalog,
		Accounts:    s.Accounts,
		Analytics:   s.Analytics,
		Receipts:    s.Receipts,
		Limiter:     limiter,
		Metrics:     s.Metrics,
		Ping:        db.Ping,
	}, s.logger.Named("api"))
	return nil
}

func (s *Server) receiptStore(ctx context.Context) (receipt.Store, error) {
	switch s.cfg.ReceiptStore {
	case config.ReceiptStoreS3:
		st, err := s3storage.New(s.cfg)
		if err != nil {
			return nil, err
		}
		if err := st.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return st, nil
	default:
		return receipt.NewFileStore(s.cfg.ReceiptDir)
	}
}

func (s *Server) sender() (notify.Sender, error) {
	if s.cfg.SMTPHost == "" {
		return notify.NewLogSender(s.logger.Named("mail")), nil
	}
	return notify.NewSMTPSender(s.cfg)
}

// RedisOpt is the asynq connection for the configured Redis.
func (s *Server) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: s.cfg.RedisAddr, Password: s.cfg.RedisPassword, DB: s.cfg.RedisDB}
}

// InProcess reports whether jobs run on the local pool instead of asynq.
func (s *Server) InProcess() bool {
	return s.pool != nil
}

// Handler starts the in-process workers on first use and returns the API
// handler.
func (s *Server) Handler(ctx context.Context) http.Handler {
	s.startBackground(ctx)
	return s.API.Handler()
}

// Serve runs the API until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.startBackground(ctx)
	err := s.API.Run(ctx)
	if s.pool != nil {
		s.pool.Wait()
	}
	return err
}

// startBackground reports whether this call started the pool.
func (s *Server) startBackground(ctx context.Context) bool {
	started := false
	s.once.Do(func() {
		if s.pool != nil {
			s.pool.Start(ctx, s.Processor.Handler())
			started = true
		}
	})
	return started
}

// Drain runs the in-process jobs queued so far, for short-lived commands
// that enqueue work and then exit. With Redis the jobs are already durable,
// and a pool already started by Serve or Handler is left to its owner.
func (s *Server) Drain(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !s.startBackground(ctx) {
		return nil
	}
	delayed, err := s.pool.Drain(ctx)
	if delayed > 0 {
		s.logger.Warn("delayed jobs need a running server and were dropped", zap.Int("jobs", delayed))
	}
	cancel()
	s.pool.Wait()
	if err != nil {
		return fmt.Errorf("drain in-process jobs: %w", err)
	}
	return nil
}

// Close releases connections. It is safe on a partially built Server.
func (s *Server) Close() error {
	var errs []error
	if s.client != nil {
		errs = append(errs, s.client.Close())
	}
	if s.rdb != nil {
		errs = append(errs, s.rdb.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}
