package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSQLiteDefaults(t *testing.T) {
	t.Setenv("BOOKWISE_DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, "bookwise.db", cfg.DatabaseURL)
	assert.Equal(t, 14, cfg.LoanPeriodDays)
	assert.Equal(t, ReceiptStoreFile, cfg.ReceiptStore)
	assert.Equal(t, time.UTC.String(), cfg.Location.String())
	assert.Len(t, cfg.SigningSecret, 32)
	assert.False(t, cfg.UsesRedis())
	assert.False(t, cfg.AdminOverrideNotify)
}

func TestLoadOverridesAndFallbacks(t *testing.T) {
	t.Setenv("BOOKWISE_DB_DRIVER", "sqlite")
	t.Setenv("BOOKWISE_LOAN_DAYS", "-3")
	t.Setenv("BOOKWISE_WORKERS", "not-a-number")
	t.Setenv("BOOKWISE_REMINDER_HOUR", "31")
	t.Setenv("BOOKWISE_PUBLIC_URL", "https://library.example.edu/")
	t.Setenv("BOOKWISE_ADMIN_OVERRIDE_NOTIFY", "true")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 14, cfg.LoanPeriodDays)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, 9, cfg.ReminderHour)
	assert.Equal(t, "https://library.example.edu", cfg.PublicBaseURL)
	assert.True(t, cfg.AdminOverrideNotify)
	assert.True(t, cfg.UsesRedis())
}

func TestLoadRejectsInvalidCombinations(t *testing.T) {
	t.Run("postgres without url", func(t *testing.T) {
		t.Setenv("BOOKWISE_DB_DRIVER", "postgres")
		t.Setenv("DATABASE_URL", "")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("BOOKWISE_DB_DRIVER", "oracle")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("s3 without endpoint", func(t *testing.T) {
		t.Setenv("BOOKWISE_DB_DRIVER", "sqlite")
		t.Setenv("BOOKWISE_RECEIPT_STORE", "s3")
		t.Setenv("S3_ENDPOINT", "")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("bad timezone", func(t *testing.T) {
		t.Setenv("BOOKWISE_DB_DRIVER", "sqlite")
		t.Setenv("BOOKWISE_TIMEZONE", "Mars/Olympus")
		_, err := Load()
		assert.Error(t, err)
	})
}
