// Package catalog manages the book collection. Copy counts are changed only
// through the inventory ledger.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/BookWise/internal/apperr"
	"github.com/dharsanguruparan/BookWise/internal/cache"
	"github.com/dharsanguruparan/BookWise/internal/inventory"
	"github.com/dharsanguruparan/BookWise/internal/model"
	"github.com/dharsanguruparan/BookWise/internal/repository"
)

// The featured shelf lists books rated at least featuredMinRating.
const (
	featuredMinRating = 4
	defaultFeatured   = 10
	maxFeatured       = 50
)

// NewBook is the input to Create.
type NewBook struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Genre       string `json:"genre"`
	Rating      int    `json:"rating"`
	TotalCopies int    `json:"totalCopies"`
	Description string `json:"description"`
	CoverURL    string `json:"coverUrl"`
	CoverColor  string `json:"coverColor"`
	VideoURL    string `json:"videoUrl"`
	Summary     string `json:"summary"`
}

// BookPatch is the input to Update. Nil fields are left unchanged.
type BookPatch struct {
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Genre       *string `json:"genre"`
	Rating      *int    `json:"rating"`
	TotalCopies *int    `json:"totalCopies"`
	Description *string `json:"description"`
	CoverURL    *string `json:"coverUrl"`
	CoverColor  *string `json:"coverColor"`
	VideoURL    *string `json:"videoUrl"`
	Summary     *string `json:"summary"`
}

// BookPage is one page of books.
type BookPage struct {
	Books      []model.Book `json:"books"`
	Total      int64        `json:"total"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	TotalPages int64        `json:"totalPages"`
}

// Service is the catalog.
type Service struct {
	store  *repository.Store
	ledger *inventory.Ledger
	cache  cache.Cache
	logger *zap.Logger
}

// NewService constructs a Service. c may be nil.
func NewService(store *repository.Store, ledger *inventory.Ledger, c cache.Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, ledger: ledger, cache: c, logger: logger}
}

// Create adds a book with every copy available.
func (s *Service) Create(ctx context.Context, in NewBook) (*model.Book, error) {
	in.Title, in.Author, in.Genre = strings.TrimSpace(in.Title), strings.TrimSpace(in.Author), strings.TrimSpace(in.Genre)
	if err := validateNew(in); err != nil {
		return nil, err
	}
	book := &model.Book{
		Title:           in.Title,
		Author:          in.Author,
		Genre:           in.Genre,
		Rating:          in.Rating,
		TotalCopies:     in.TotalCopies,
		AvailableCopies: in.TotalCopies,
		Description:     in.Description,
		CoverURL:        in.CoverURL,
		CoverColor:      in.CoverColor,
		VideoURL:        in.VideoURL,
		Summary:         in.Summary,
	}
	if err := s.store.CreateBook(ctx, book); err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	s.logger.Info("book created", zap.String("book_id", book.ID), zap.String("title", book.Title))
	s.invalidate(ctx, book.ID)
	return book, nil
}

// Update applies a patch. A new total moves available copies by the same
// delta, clamped to [0, total].
func (s *Service) Update(ctx context.Context, id string, p BookPatch) (*model.Book, error) {
	fields, err := patchFields(p)
	if err != nil {
		return nil, err
	}
	var book *model.Book
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := tx.GetBook(ctx, id); err != nil {
			return notFound(err)
		}
		if err := tx.UpdateBookFields(ctx, id, fields); err != nil {
			return notFound(err)
		}
		if p.TotalCopies != nil {
			if _, err := s.ledger.WithTx(tx.DB()).Resize(ctx, id, *p.TotalCopies); err != nil {
				return err
			}
		}
		book, err = tx.GetBook(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update book: %w", err)
	}
	s.logger.Info("book updated", zap.String("book_id", id))
	s.invalidate(ctx, id)
	return book, nil
}

// Delete removes a book and its returned loan history. A book with copies on
// loan cannot be deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	var removed int64
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := tx.GetBook(ctx, id); err != nil {
			return notFound(err)
		}
		open, err := tx.CountOpenForBook(ctx, id)
		if err != nil {
			return err
		}
		if open > 0 {
			return apperr.ErrBookOnLoan
		}
		if removed, err = tx.DeleteRecordsForBook(ctx, id); err != nil {
			return err
		}
		return notFound(tx.DeleteBook(ctx, id))
	})
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	s.logger.Info("book deleted", zap.String("book_id", id), zap.Int64("history_removed", removed))
	s.invalidate(ctx, id)
	if err := cache.Invalidate(ctx, s.cache, nil, cache.KeyBorrowRecords); err != nil {
		s.logger.Warn("cache invalidation failed", zap.Error(err))
	}
	return nil
}

// Get returns one book.
func (s *Service) Get(ctx context.Context, id string) (*model.Book, error) {
	book, err := cache.Fetch(ctx, s.cache, cache.BookDetail(id), cache.TTLHour, func(ctx context.Context) (*model.Book, error) {
		return s.store.GetBook(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("get book: %w", notFound(err))
	}
	return book, nil
}

// List returns a page of books matching f.
func (s *Service) List(ctx context.Context, f repository.BookFilter) (*BookPage, error) {
	if f.MinRating < 0 || f.MinRating > 5 {
		return nil, apperr.Validation("minRating must be between 0 and 5")
	}
	f.Page = f.Page.Normalize()
	key := cache.ListKey(cache.KeyBooksAll,
		"page", f.Page.Page, "limit", f.Page.Limit,
		"search", f.Search, "genre", f.Genre, "author", f.Author,
		"rating", f.MinRating, "available", f.AvailableOnly)
	return cache.Fetch(ctx, s.cache, key, cache.TTLLong, func(ctx context.Context) (*BookPage, error) {
		books, total, err := s.store.ListBooks(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("list books: %w", err)
		}
		limit := int64(f.Page.Limit)
		return &BookPage{
			Books:      books,
			Total:      total,
			Page:       f.Page.Page,
			Limit:      f.Page.Limit,
			TotalPages: (total + limit - 1) / limit,
		}, nil
	})
}

// Featured returns up to limit of the best rated books. A zero limit means
// the default shelf size.
func (s *Service) Featured(ctx context.Context, limit int) ([]model.Book, error) {
	if limit == 0 {
		limit = defaultFeatured
	}
	if limit < 1 || limit > maxFeatured {
		return nil, apperr.Validation(fmt.Sprintf("limit must be between 1 and %d", maxFeatured))
	}
	return cache.Fetch(ctx, s.cache, cache.FeaturedBooks(limit), cache.TTLHour, func(ctx context.Context) ([]model.Book, error) {
		books, err := s.store.FeaturedBooks(ctx, featuredMinRating, limit)
		if err != nil {
			return nil, fmt.Errorf("featured books: %w", err)
		}
		if books == nil {
			books = []model.Book{}
		}
		return books, nil
	})
}

func (s *Service) invalidate(ctx context.Context, id string) {
	keys := []string{cache.BookDetail(id), cache.KeyAnalyticsDashboard}
	if err := cache.Invalidate(ctx, s.cache, keys, cache.KeyBooksAll, cache.KeyAnalyticsStats); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("book_id", id), zap.Error(err))
	}
}

func validateNew(in NewBook) error {
	switch {
	case in.Title == "":
		return apperr.Validation("title is required")
	case in.Author == "":
		return apperr.Validation("author is required")
	case in.Genre == "":
		return apperr.Validation("genre is required")
	case in.Rating < 0 || in.Rating > 5:
		return apperr.Validation("rating must be between 0 and 5")
	case in.TotalCopies < 0:
		return apperr.Validation("totalCopies must not be negative")
	}
	return nil
}

func patchFields(p BookPatch) (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	required := func(column string, v *string) error {
		if v == nil {
			return nil
		}
		trimmed := strings.TrimSpace(*v)
		if trimmed == "" {
			return apperr.Validation(column + " must not be empty")
		}
		fields[column] = trimmed
		return nil
	}
	for column, v := range map[string]*string{"title": p.Title, "author": p.Author, "genre": p.Genre} {
		if err := required(column, v); err != nil {
			return nil, err
		}
	}
	if p.Rating != nil {
		if *p.Rating < 0 || *p.Rating > 5 {
			return nil, apperr.Validation("rating must be between 0 and 5")
		}
		fields["rating"] = *p.Rating
	}
	if p.TotalCopies != nil && *p.TotalCopies < 0 {
		return nil, apperr.Validation("totalCopies must not be negative")
	}
	optional := map[string]*string{
		"description": p.Description,
		"cover_url":   p.CoverURL,
		"cover_color": p.CoverColor,
		"video_url":   p.VideoURL,
		"summary":     p.Summary,
	}
	for column, v := range optional {
		if v != nil {
			fields[column] = *v
		}
	}
	return fields, nil
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.ErrBookNotFound
	}
	return err
}
