// Package dbtest provides throwaway migrated SQLite databases and fixtures
// for package tests.
package dbtest

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dharsanguruparan/BookWise/internal/database"
	"github.com/dharsanguruparan/BookWise/internal/model"
)

var seq atomic.Int64

// New opens a migrated database in the test's temp dir. It is closed when
// the test ends.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "bookwise.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db.DB))
	return db.DB
}

// Book inserts a book with the given number of copies, all available.
func Book(t testing.TB, db *gorm.DB, title string, copies int) *model.Book {
	t.Helper()
	b := &model.Book{
		Title:           title,
		Author:          "Author of " + title,
		Genre:           "Fiction",
		Rating:          4,
		TotalCopies:     copies,
		AvailableCopies: copies,
	}
	require.NoError(t, db.Create(b).Error)
	return b
}

// User inserts a user in the given account status.
func User(t testing.TB, db *gorm.DB, status model.AccountStatus) *model.User {
	t.Helper()
	n := seq.Add(1)
	u := &model.User{
		FullName:     fmt.Sprintf("Student %d", n),
		Email:        fmt.Sprintf("student%d@uni.edu", n),
		UniversityID: 100000 + n,
		PasswordHash: "hash",
		Role:         model.RoleUser,
		Status:       status,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// Available reads the current available copies of a book.
func Available(t testing.TB, db *gorm.DB, bookID string) int {
	t.Helper()
	var b model.Book
	require.NoError(t, db.First(&b, "id = ?", bookID).Error)
	return b.AvailableCopies
}
