package repository

import (
	"context"
	"time"

	"github.com/dharsanguruparan/BookWise/internal/model"
)

// Counts is the raw material for the admin dashboard.
type Counts struct {
	TotalUsers         int64
	TotalBooks         int64
	TotalBorrowedBooks int64
	PendingRequests    int64
	AvailableCopies    int64
	NewUsersSince      int64
	NewBooksSince      int64
	BorrowsSince       int64
}

// BookBorrowCount is one row of the most borrowed books ranking.
type BookBorrowCount struct {
	BookID  string `json:"bookId"`
	Title   string `json:"title"`
	Author  string `json:"author"`
	Borrows int64  `json:"borrows"`
}

// ActivityBorrow is the only activity type the feed reports.
const ActivityBorrow = "BORROW"

// Activity is one entry of the recent circulation feed.
type Activity struct {
	RecordID     string             `json:"id"`
	Type         string             `json:"type"`
	UserName     string             `json:"userName"`
	BookTitle    string             `json:"bookTitle"`
	ActivityDate time.Time          `json:"date"`
	Status       model.BorrowStatus `json:"status"`
}

// LoanActivity is a borrow or return date used for trend lines.
type LoanActivity struct {
	BorrowDate time.Time
	ReturnDate *time.Time
}

// CountAll gathers dashboard counters. since bounds the "this month" values.
func (s *Store) CountAll(ctx context.Context, since time.Time) (Counts, error) {
	var c Counts
	db := s.conn(ctx)
	steps := []struct {
		op  string
		run func() error
	}{
		{"count users", func() error { return db.Model(&model.User{}).Count(&c.TotalUsers).Error }},
		{"count books", func() error { return db.Model(&model.Book{}).Count(&c.TotalBooks).Error }},
		{"count open loans", func() error {
			return db.Model(&model.BorrowRecord{}).Where("status = ?", model.StatusBorrowed).Count(&c.TotalBorrowedBooks).Error
		}},
		{"count pending users", func() error {
			return db.Model(&model.User{}).Where("status = ?", model.AccountPending).Count(&c.PendingRequests).Error
		}},
		{"sum available copies", func() error {
			return db.Model(&model.Book{}).Select("COALESCE(SUM(available_copies), 0)").Scan(&c.AvailableCopies).Error
		}},
		{"count new users", func() error {
			return db.Model(&model.User{}).Where("created_at >= ?", since).Count(&c.NewUsersSince).Error
		}},
		{"count new books", func() error {
			return db.Model(&model.Book{}).Where("created_at >= ?", since).Count(&c.NewBooksSince).Error
		}},
		{"count recent borrows", func() error {
			return db.Model(&model.BorrowRecord{}).Where("borrow_date >= ?", since).Count(&c.BorrowsSince).Error
		}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return Counts{}, translate(step.op, err)
		}
	}
	return c, nil
}

// TopBooks ranks books by number of borrow records.
func (s *Store) TopBooks(ctx context.Context, limit int) ([]BookBorrowCount, error) {
	var out []BookBorrowCount
	err := s.conn(ctx).Model(&model.BorrowRecord{}).
		Select("borrow_records.book_id AS book_id, books.title AS title, books.author AS author, COUNT(*) AS borrows").
		Joins("JOIN books ON books.id = borrow_records.book_id").
		Group("borrow_records.book_id, books.title, books.author").
		Order("borrows DESC, books.title").
		Limit(limit).
		Scan(&out).Error
	return out, translate("top books", err)
}

// LoanActivitySince returns records borrowed or returned on or after t.
func (s *Store) LoanActivitySince(ctx context.Context, t time.Time) ([]LoanActivity, error) {
	var out []LoanActivity
	err := s.conn(ctx).Model(&model.BorrowRecord{}).
		Select("borrow_date, return_date").
		Where("borrow_date >= ? OR return_date >= ?", t, t).
		Scan(&out).Error
	return out, translate("loan activity", err)
}

// RecentActivities returns the latest borrows with who borrowed what.
func (s *Store) RecentActivities(ctx context.Context, limit int) ([]Activity, error) {
	var out []Activity
	err := s.conn(ctx).Model(&model.BorrowRecord{}).
		Select("borrow_records.id AS record_id, users.full_name AS user_name, books.title AS book_title, " +
			"borrow_records.borrow_date AS activity_date, borrow_records.status AS status").
		Joins("JOIN users ON users.id = borrow_records.user_id").
		Joins("JOIN books ON books.id = borrow_records.book_id").
		Order("borrow_records.borrow_date DESC, borrow_records.created_at DESC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, translate("recent activities", err)
	}
	for i := range out {
		out[i].Type = ActivityBorrow
	}
	return out, nil
}

// BorrowCounts returns how many borrow records each of userIDs has, open or
// returned. Users without records are absent from the map.
func (s *Store) BorrowCounts(ctx context.Context, userIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		UserID  string
		Borrows int64
	}
	err := s.conn(ctx).Model(&model.BorrowRecord{}).
		Select("user_id, COUNT(*) AS borrows").
		Where("user_id IN ?", userIDs).
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, translate("borrow counts", err)
	}
	for _, r := range rows {
		out[r.UserID] = r.Borrows
	}
	return out, nil
}
