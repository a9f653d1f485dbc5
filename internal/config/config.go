// Package config centralizes how BookWise reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database drivers understood by database.Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Receipt store backends.
const (
	ReceiptStoreS3   = "s3"
	ReceiptStoreFile = "fs"
)

// Config represents runtime configuration shared by the API server, the
// worker and the admin CLI.
type Config struct {
	Address  string
	LogLevel string

	DatabaseDriver string
	DatabaseURL    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ReceiptStore  string
	ReceiptDir    string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3UseSSL      bool
	S3Region      string
	ReceiptBucket string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	PublicBaseURL            string
	SigningSecret            []byte
	ReceiptURLTTL            time.Duration
	ReceiptsRequireSignature bool

	WorkerConcurrency   int
	LoanPeriodDays      int
	ReminderHour        int
	Location            *time.Location
	AdminToken          string
	AdminOverrideNotify bool
}

const (
	defaultAddress        = ":8080"
	defaultLogLevel       = "info"
	defaultSQLitePath     = "bookwise.db"
	defaultReceiptDir     = "receipts"
	defaultReceiptBucket  = "bookwise-receipts"
	defaultS3Region       = "us-east-1"
	defaultSMTPPort       = 587
	defaultMailFrom       = "BookWise <no-reply@bookwise.example.com>"
	defaultPublicBaseURL  = "http://localhost:8080"
	defaultReceiptURLTTL  = 7 * 24 * time.Hour
	defaultWorkerCount    = 4
	defaultLoanPeriodDays = 14
	defaultReminderHour   = 9
	defaultTimezone       = "UTC"
)

// UsesRedis reports whether a Redis address was configured. Without Redis the
// server falls back to in-process queues, caches and limiters.
func (c *Config) UsesRedis() bool {
	return c.RedisAddr != ""
}

// Load reads configuration from environment variables falling back to defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Address:  readEnv("BOOKWISE_ADDRESS", defaultAddress),
		LogLevel: readEnv("BOOKWISE_LOG_LEVEL", defaultLogLevel),

		DatabaseDriver: strings.ToLower(readEnv("BOOKWISE_DB_DRIVER", DriverPostgres)),
		DatabaseURL:    readEnv("DATABASE_URL", ""),

		RedisAddr:     readEnv("REDIS_ADDR", ""),
		RedisPassword: readEnv("REDIS_PASSWORD", ""),
		RedisDB:       parseInt("REDIS_DB", 0),

		ReceiptStore:  strings.ToLower(readEnv("BOOKWISE_RECEIPT_STORE", ReceiptStoreFile)),
		ReceiptDir:    readEnv("BOOKWISE_RECEIPT_DIR", defaultReceiptDir),
		S3Endpoint:    readEnv("S3_ENDPOINT", ""),
		S3AccessKey:   readEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:   readEnv("S3_SECRET_KEY", ""),
		S3UseSSL:      parseBool("S3_USE_SSL", false),
		S3Region:      readEnv("S3_REGION", defaultS3Region),
		ReceiptBucket: readEnv("S3_RECEIPT_BUCKET", defaultReceiptBucket),

		SMTPHost:     readEnv("SMTP_HOST", ""),
		SMTPPort:     parseInt("SMTP_PORT", defaultSMTPPort),
		SMTPUsername: readEnv("SMTP_USERNAME", ""),
		SMTPPassword: readEnv("SMTP_PASSWORD", ""),
		MailFrom:     readEnv("BOOKWISE_MAIL_FROM", defaultMailFrom),

		PublicBaseURL:            strings.TrimSuffix(readEnv("BOOKWISE_PUBLIC_URL", defaultPublicBaseURL), "/"),
		SigningSecret:            parseSecret("BOOKWISE_SIGNING_SECRET"),
		ReceiptURLTTL:            parseDuration("BOOKWISE_RECEIPT_URL_TTL", defaultReceiptURLTTL),
		ReceiptsRequireSignature: parseBool("BOOKWISE_RECEIPTS_REQUIRE_SIGNATURE", false),

		WorkerConcurrency:   parseInt("BOOKWISE_WORKERS", defaultWorkerCount),
		LoanPeriodDays:      parseInt("BOOKWISE_LOAN_DAYS", defaultLoanPeriodDays),
		ReminderHour:        parseInt("BOOKWISE_REMINDER_HOUR", defaultReminderHour),
		AdminToken:          readEnv("BOOKWISE_ADMIN_TOKEN", ""),
		AdminOverrideNotify: parseBool("BOOKWISE_ADMIN_OVERRIDE_NOTIFY", false),
	}

	loc, err := time.LoadLocation(readEnv("BOOKWISE_TIMEZONE", defaultTimezone))
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	cfg.Location = loc

	switch cfg.DatabaseDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the %s driver", DriverPostgres)
		}
	case DriverSQLite:
		if cfg.DatabaseURL == "" {
			cfg.DatabaseURL = defaultSQLitePath
		}
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}

	switch cfg.ReceiptStore {
	case ReceiptStoreFile:
	case ReceiptStoreS3:
		if cfg.S3Endpoint == "" {
			return nil, fmt.Errorf("S3_ENDPOINT is required for the %s receipt store", ReceiptStoreS3)
		}
	default:
		return nil, fmt.Errorf("unknown receipt store %q", cfg.ReceiptStore)
	}

	if cfg.SigningSecret == nil {
		cfg.SigningSecret = randomSecret()
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = defaultWorkerCount
	}
	if cfg.LoanPeriodDays <= 0 {
		cfg.LoanPeriodDays = defaultLoanPeriodDays
	}
	if cfg.ReminderHour < 0 || cfg.ReminderHour > 23 {
		cfg.ReminderHour = defaultReminderHour
	}
	if cfg.ReceiptURLTTL <= 0 {
		cfg.ReceiptURLTTL = defaultReceiptURLTTL
	}
	return cfg, nil
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	// time.ParseDuration understands inputs like "5m" or "168h".
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte(hex.EncodeToString([]byte("fallbacksecret")))
	}
	return buf
}
