// Package inventory owns Book.AvailableCopies. Every change is a single
// conditional UPDATE so concurrent borrowers can never drive the count below
// zero or above the book's total.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dharsanguruparan/BookWise/internal/apperr"
	"github.com/dharsanguruparan/BookWise/internal/model"
)

// Availability is the result of CheckAvailability.
type Availability struct {
	Available  bool `json:"available"`
	CopiesLeft int  `json:"copiesLeft"`
}

// Ledger adjusts copy counts. Use WithTx to bind it to a transaction.
type Ledger struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewLedger constructs a Ledger.
func NewLedger(db *gorm.DB, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{db: db, logger: logger}
}

// WithTx returns a ledger that issues its statements on tx.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx, logger: l.logger}
}

// CheckAvailability reports whether at least one copy can be borrowed.
func (l *Ledger) CheckAvailability(ctx context.Context, bookID string) (Availability, error) {
	book, err := l.load(ctx, bookID)
	if err != nil {
		return Availability{}, err
	}
	return Availability{Available: book.AvailableCopies > 0, CopiesLeft: book.AvailableCopies}, nil
}

// Decrement takes one copy off the shelf and returns the new count.
func (l *Ledger) Decrement(ctx context.Context, bookID string) (int, error) {
	res := l.db.WithContext(ctx).Model(&model.Book{}).
		Where("id = ? AND available_copies > 0", bookID).
		UpdateColumn("available_copies", gorm.Expr("available_copies - 1"))
	if res.Error != nil {
		return 0, fmt.Errorf("decrement available copies: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := l.load(ctx, bookID); err != nil {
			return 0, err
		}
		return 0, apperr.ErrOutOfStock
	}
	book, err := l.load(ctx, bookID)
	if err != nil {
		return 0, err
	}
	return book.AvailableCopies, nil
}

// Increment puts one copy back. A book already at its total is left
// unchanged and logged rather than failed.
func (l *Ledger) Increment(ctx context.Context, bookID string) (int, error) {
	res := l.db.WithContext(ctx).Model(&model.Book{}).
		Where("id = ? AND available_copies < total_copies", bookID).
		UpdateColumn("available_copies", gorm.Expr("available_copies + 1"))
	if res.Error != nil {
		return 0, fmt.Errorf("increment available copies: %w", res.Error)
	}
	book, err := l.load(ctx, bookID)
	if err != nil {
		return 0, err
	}
	if res.RowsAffected == 0 {
		l.logger.Warn("increment clamped at total copies",
			zap.String("book_id", bookID),
			zap.Int("total_copies", book.TotalCopies),
		)
	}
	return book.AvailableCopies, nil
}

// resizeExpr shifts available by the change in total and clamps the result
// to [0, newTotal]. Written with CASE so Postgres and SQLite both accept it.
const resizeExpr = `CASE
	WHEN available_copies + (? - total_copies) < 0 THEN 0
	WHEN available_copies + (? - total_copies) > ? THEN ?
	ELSE available_copies + (? - total_copies)
END`

// Resize changes a book's total copies, moving available by the same delta.
func (l *Ledger) Resize(ctx context.Context, bookID string, newTotal int) (*model.Book, error) {
	if newTotal < 0 {
		return nil, apperr.Validation("totalCopies must not be negative")
	}
	res := l.db.WithContext(ctx).Model(&model.Book{}).
		Where("id = ?", bookID).
		UpdateColumns(map[string]interface{}{
			"available_copies": gorm.Expr(resizeExpr, newTotal, newTotal, newTotal, newTotal, newTotal),
			"total_copies":     newTotal,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("resize book: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.ErrBookNotFound
	}
	return l.load(ctx, bookID)
}

func (l *Ledger) load(ctx context.Context, bookID string) (*model.Book, error) {
	var book model.Book
	err := l.db.WithContext(ctx).First(&book, "id = ?", bookID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load book: %w", err)
	}
	return &book, nil
}
