// Package database opens the relational store behind BookWise. Postgres is
// reached through a pgx pool that gorm shares; SQLite backs development and
// tests.
package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dharsanguruparan/BookWise/internal/config"
	"github.com/dharsanguruparan/BookWise/internal/model"
)

// DB bundles the gorm handle with the pool it was built on so both can be
// closed together.
type DB struct {
	*gorm.DB
	pool *pgxpool.Pool
}

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Open connects to the store selected in cfg. Query warnings go to logger.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*DB, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		pool, err := Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		db, err := OpenPostgres(pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return db, nil
	case config.DriverSQLite:
		return OpenSQLite(cfg.DatabaseURL, logger)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
}

// OpenPostgres layers gorm on top of an existing pgx pool.
func OpenPostgres(pool *pgxpool.Pool, logger *zap.Logger) (*DB, error) {
	sqlDB := stdlib.OpenDBFromPool(pool)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig(logger))
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}
	return &DB{DB: db, pool: pool}, nil
}

// OpenSQLite opens (creating if needed) a SQLite database file. A single
// connection serialises transactions.
func OpenSQLite(path string, logger *zap.Logger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", path)
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(logger))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return &DB{DB: db}, nil
}

// gormWriter feeds gorm's printf-style logger into zap.
type gormWriter struct {
	log *zap.SugaredLogger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warnf(format, args...)
}

func gormConfig(logger *zap.Logger) *gorm.Config {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &gorm.Config{
		// Misses are reported as repository.ErrNotFound, not logged.
		Logger: gormlogger.New(gormWriter{log: logger.Named("gorm").Sugar()}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Ping checks if the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// Close releases the connection and, for Postgres, the pool underneath it.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	err = sqlDB.Close()
	if db.pool != nil {
		db.pool.Close()
	}
	return err
}

// openLoanIndex guarantees at most one BORROWED record per (user, book).
const openLoanIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_borrow_records_open
ON borrow_records (user_id, book_id) WHERE status = 'BORROWED'`

// Migrate creates or updates the schema. Both Postgres and SQLite accept
// the partial index syntax.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&model.Book{}, &model.User{}, &model.BorrowRecord{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.WithContext(ctx).Exec(openLoanIndex).Error; err != nil {
		return fmt.Errorf("create open loan index: %w", err)
	}
	return nil
}
