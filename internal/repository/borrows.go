package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dharsanguruparan/BookWise/internal/model"
)

// RecordFilter narrows ListRecords.
type RecordFilter struct {
	UserID string
	BookID string
	Status model.BorrowStatus
	Page
}

// GetRecord returns a borrow record with its book and user loaded.
func (s *Store) GetRecord(ctx context.Context, id string) (*model.BorrowRecord, error) {
	var rec model.BorrowRecord
	err := s.conn(ctx).Preload("Book").Preload("User").First(&rec, "id = ?", id).Error
	if err != nil {
		return nil, translate("select borrow record", err)
	}
	return &rec, nil
}

// GetRecordByReceipt looks a record up by its receipt code.
func (s *Store) GetRecordByReceipt(ctx context.Context, code string) (*model.BorrowRecord, error) {
	var rec model.BorrowRecord
	err := s.conn(ctx).Preload("Book").Preload("User").First(&rec, "receipt_code = ?", code).Error
	if err != nil {
		return nil, translate("select borrow record by receipt", err)
	}
	return &rec, nil
}

// FindOpenRecord returns the BORROWED record for a (user, book) pair.
func (s *Store) FindOpenRecord(ctx context.Context, userID, bookID string) (*model.BorrowRecord, error) {
	var rec model.BorrowRecord
	err := s.conn(ctx).
		Where("user_id = ? AND book_id = ? AND status = ?", userID, bookID, model.StatusBorrowed).
		First(&rec).Error
	if err != nil {
		return nil, translate("select open record", err)
	}
	return &rec, nil
}

// CreateRecord inserts a borrow record. A second open record for the same
// pair surfaces as ErrDuplicate.
func (s *Store) CreateRecord(ctx context.Context, rec *model.BorrowRecord) error {
	err := s.conn(ctx).Omit("User", "Book").Create(rec).Error
	return translate("insert borrow record", err)
}

// MarkReturned closes an open record. It reports false when the record was
// not BORROWED, so two concurrent returns cannot both succeed.
func (s *Store) MarkReturned(ctx context.Context, id string, returnDate time.Time) (bool, error) {
	res := s.conn(ctx).Model(&model.BorrowRecord{}).
		Where("id = ? AND status = ?", id, model.StatusBorrowed).
		Updates(map[string]interface{}{
			"status":      model.StatusReturned,
			"return_date": returnDate,
		})
	if res.Error != nil {
		return false, translate("mark returned", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListRecords returns a page of records, newest first, with book and user
// loaded.
func (s *Store) ListRecords(ctx context.Context, f RecordFilter) ([]model.BorrowRecord, int64, error) {
	q := s.conn(ctx).Model(&model.BorrowRecord{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.BookID != "" {
		q = q.Where("book_id = ?", f.BookID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate("count borrow records", err)
	}
	var recs []model.BorrowRecord
	err := f.Page.apply(q.Order("created_at DESC, id")).
		Preload("Book").Preload("User").
		Find(&recs).Error
	if err != nil {
		return nil, 0, translate("list borrow records", err)
	}
	return recs, total, nil
}

// OpenRecordsForUser returns every BORROWED record of a user.
func (s *Store) OpenRecordsForUser(ctx context.Context, userID string) ([]model.BorrowRecord, error) {
	var recs []model.BorrowRecord
	err := s.conn(ctx).Where("user_id = ? AND status = ?", userID, model.StatusBorrowed).Find(&recs).Error
	return recs, translate("open records for user", err)
}

// CountOpenForBook counts copies of a book currently on loan.
func (s *Store) CountOpenForBook(ctx context.Context, bookID string) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&model.BorrowRecord{}).
		Where("book_id = ? AND status = ?", bookID, model.StatusBorrowed).
		Count(&n).Error
	return n, translate("count open records", err)
}

// DeleteRecordsForUser removes a user's borrow history.
func (s *Store) DeleteRecordsForUser(ctx context.Context, userID string) (int64, error) {
	return s.deleteRecords(ctx, s.conn(ctx).Where("user_id = ?", userID))
}

// DeleteRecordsForBook removes a book's borrow history.
func (s *Store) DeleteRecordsForBook(ctx context.Context, bookID string) (int64, error) {
	return s.deleteRecords(ctx, s.conn(ctx).Where("book_id = ?", bookID))
}

func (s *Store) deleteRecords(ctx context.Context, q *gorm.DB) (int64, error) {
	res := q.Delete(&model.BorrowRecord{})
	if res.Error != nil {
		return 0, translate("delete borrow records", res.Error)
	}
	return res.RowsAffected, nil
}
