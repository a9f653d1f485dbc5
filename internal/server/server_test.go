package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/BookWise/internal/accounts"
	"github.com/dharsanguruparan/BookWise/internal/catalog"
	"github.com/dharsanguruparan/BookWise/internal/config"
	"github.com/dharsanguruparan/BookWise/internal/model"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Address:           ":0",
		DatabaseDriver:    config.DriverSQLite,
		DatabaseURL:       filepath.Join(dir, "bookwise.db"),
		ReceiptStore:      config.ReceiptStoreFile,
		ReceiptDir:        filepath.Join(dir, "receipts"),
		PublicBaseURL:     "http://library.test",
		SigningSecret:     []byte("secret"),
		ReceiptURLTTL:     time.Hour,
		WorkerConcurrency: 2,
		LoanPeriodDays:    14,
		ReminderHour:      9,
		Location:          time.UTC,
	}
}

func TestNewWithoutRedisRunsInProcess(t *testing.T) {
	s, err := New(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	assert.True(t, s.InProcess())
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.DatabaseDriver = "oracle"
	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestBorrowMaterializesReceiptInBackground(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := New(ctx, testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	book, err := s.Catalog.Create(ctx, catalog.NewBook{Title: "Dune", Author: "Frank Herbert", Genre: "Science Fiction", Rating: 5, TotalCopies: 1})
	require.NoError(t, err)
	user, err := s.Accounts.CreateByAdmin(ctx, accounts.Registration{FullName: "Ada Lovelace", Email: "ada@uni.edu", UniversityID: 1815, Password: "analytical"})
	require.NoError(t, err)

	h := s.Handler(ctx)
	body, err := jsoniter.Marshal(map[string]string{"userId": user.ID, "bookId": book.ID})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/borrow", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Record model.BorrowRecord `json:"record"`
	}
	require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &created))

	require.Eventually(t, func() bool {
		_, err := s.Receipts.Open(ctx, created.Record.ReceiptCode)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestDrainRunsQueuedJobsBeforeExit(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	book, err := s.Catalog.Create(ctx, catalog.NewBook{Title: "Emma", Author: "Jane Austen", Genre: "Classic", Rating: 4, TotalCopies: 1})
	require.NoError(t, err)
	user, err := s.Accounts.CreateByAdmin(ctx, accounts.Registration{FullName: "Grace Hopper", Email: "grace@uni.edu", UniversityID: 1906, Password: "compiler"})
	require.NoError(t, err)
	rec, err := s.Circulation.Borrow(ctx, user.ID, book.ID)
	require.NoError(t, err)

	require.NoError(t, s.Drain(ctx))
	_, err = s.Receipts.Open(ctx, rec.ReceiptCode)
	assert.NoError(t, err)
}
