package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/dharsanguruparan/BookWise/internal/model"
)

func TestMigrateEnforcesOneOpenLoanPerPair(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "bookwise.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(ctx, db.DB))
	// Migrations are re-runnable.
	require.NoError(t, Migrate(ctx, db.DB))

	book := &model.Book{Title: "Dune", Author: "Frank Herbert", Genre: "Sci-Fi", TotalCopies: 2, AvailableCopies: 2}
	user := &model.User{FullName: "Ada", Email: "ada@uni.edu", UniversityID: 1, PasswordHash: "x", Role: model.RoleUser, Status: model.AccountApproved}
	require.NoError(t, db.Create(book).Error)
	require.NoError(t, db.Create(user).Error)

	open := func(code string, status model.BorrowStatus) error {
		return db.Create(&model.BorrowRecord{
			UserID: user.ID, BookID: book.ID, ReceiptCode: code,
			BorrowDate: model.Date(2024, 1, 1), DueDate: model.Date(2024, 1, 15), Status: status,
		}).Error
	}
	require.NoError(t, open("R1", model.StatusReturned))
	require.NoError(t, open("R2", model.StatusBorrowed))
	err = open("R3", model.StatusBorrowed)
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "got %v", err)
}

func TestAvailableCopiesCheckConstraint(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "bookwise.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(ctx, db.DB))

	err = db.Create(&model.Book{Title: "Bad", Author: "X", Genre: "Y", TotalCopies: 1, AvailableCopies: 2}).Error
	assert.Error(t, err)
	require.NoError(t, db.Ping(ctx))
}

func TestRecordNotFoundIsNotLogged(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.DebugLevel)
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "bookwise.db"), zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(ctx, db.DB))
	logs.TakeAll()

	var book model.Book
	err = db.WithContext(ctx).First(&book, "id = ?", "missing").Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Zero(t, logs.Len())

	// Real query errors still reach zap.
	_ = db.WithContext(ctx).Exec("SELECT * FROM no_such_table").Error
	assert.NotZero(t, logs.FilterLoggerName("gorm").Len())
}
