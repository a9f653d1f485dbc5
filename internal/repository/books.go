package repository

import (
	"context"
	"strings"
	"time"

	"github.com/dharsanguruparan/BookWise/internal/model"
)

// BookFilter narrows ListBooks.
type BookFilter struct {
	Search        string
	Genre         string
	Author        string
	MinRating     int
	AvailableOnly bool
	Page
}

// GetBook returns a book by id.
func (s *Store) GetBook(ctx context.Context, id string) (*model.Book, error) {
	var book model.Book
	if err := s.conn(ctx).First(&book, "id = ?", id).Error; err != nil {
		return nil, translate("select book", err)
	}
	return &book, nil
}

// FindBookByTitleAuthor is used by seeding to skip titles already present.
func (s *Store) FindBookByTitleAuthor(ctx context.Context, title, author string) (*model.Book, error) {
	var book model.Book
	err := s.conn(ctx).Where("title = ? AND author = ?", title, author).First(&book).Error
	if err != nil {
		return nil, translate("select book by title", err)
	}
	return &book, nil
}

// CreateBook inserts a book.
func (s *Store) CreateBook(ctx context.Context, book *model.Book) error {
	return translate("insert book", s.conn(ctx).Create(book).Error)
}

// UpdateBookFields applies a partial update. Copy counts are never passed
// here; they belong to the inventory ledger.
func (s *Store) UpdateBookFields(ctx context.Context, id string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	res := s.conn(ctx).Model(&model.Book{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translate("update book", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("update book", ErrNotFound)
	}
	return nil
}

// DeleteBook removes a book row.
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	res := s.conn(ctx).Delete(&model.Book{}, "id = ?", id)
	if res.Error != nil {
		return translate("delete book", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("delete book", ErrNotFound)
	}
	return nil
}

// ListBooks returns a page of books and the total matching count.
func (s *Store) ListBooks(ctx context.Context, f BookFilter) ([]model.Book, int64, error) {
	q := s.conn(ctx).Model(&model.Book{})
	if term := strings.TrimSpace(strings.ToLower(f.Search)); term != "" {
		like := "%" + term + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ? OR LOWER(genre) LIKE ?", like, like, like)
	}
	if f.Genre != "" {
		q = q.Where("genre = ?", f.Genre)
	}
	if f.Author != "" {
		q = q.Where("author = ?", f.Author)
	}
	if f.MinRating > 0 {
		q = q.Where("rating >= ?", f.MinRating)
	}
	if f.AvailableOnly {
		q = q.Where("available_copies > 0")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate("count books", err)
	}
	var books []model.Book
	if err := f.Page.apply(q.Order("created_at DESC, id")).Find(&books).Error; err != nil {
		return nil, 0, translate("list books", err)
	}
	return books, total, nil
}

// FeaturedBooks returns up to limit books rated at least minRating, best
// first.
func (s *Store) FeaturedBooks(ctx context.Context, minRating, limit int) ([]model.Book, error) {
	var books []model.Book
	err := s.conn(ctx).
		Where("rating >= ?", minRating).
		Order("rating DESC, created_at DESC, id").
		Limit(limit).
		Find(&books).Error
	return books, translate("featured books", err)
}

// BooksCreatedSince returns the creation times of books added at or after t.
func (s *Store) BooksCreatedSince(ctx context.Context, t time.Time) ([]time.Time, error) {
	var out []time.Time
	err := s.conn(ctx).Model(&model.Book{}).Where("created_at >= ?", t).Pluck("created_at", &out).Error
	return out, translate("books created since", err)
}
