// Package circulation implements the borrow and return state machine. Each
// transition runs in one database transaction together with its inventory
// change; notifications, receipts, reminders and cache invalidation happen
// after commit and never affect the outcome.
package circulation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/BookWise/internal/apperr"
	"github.com/dharsanguruparan/BookWise/internal/cache"
	"github.com/dharsanguruparan/BookWise/internal/inventory"
	"github.com/dharsanguruparan/BookWise/internal/metrics"
	"github.com/dharsanguruparan/BookWise/internal/model"
	"github.com/dharsanguruparan/BookWise/internal/receipt"
	"github.com/dharsanguruparan/BookWise/internal/repository"
)

// LoanPeriodDays is the default loan length.
const LoanPeriodDays = 14

// EventKind identifies a committed transition.
type EventKind int

const (
	EventBorrowed EventKind = iota + 1
	EventReturned
)

func (k EventKind) String() string {
	switch k {
	case EventBorrowed:
		return "borrowed"
	case EventReturned:
		return "returned"
	default:
		return "unknown"
	}
}

// Event describes a committed transition. Record has Book and User loaded.
type Event struct {
	Kind     EventKind
	Record   *model.BorrowRecord
	IsLate   bool
	DaysLate int
	// Override is set when an administrator forced the transition.
	Override bool
	// Notify is false when member-facing messages must not be sent.
	Notify bool
}

// Observer reacts to committed transitions. Implementations handle their own
// failures; the transition has already succeeded.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// Options tunes a Service.
type Options struct {
	LoanPeriodDays      int
	Location            *time.Location
	Now                 func() time.Time
	AdminOverrideNotify bool
}

// ReturnResult is the outcome of a successful return.
type ReturnResult struct {
	Record   *model.BorrowRecord `json:"record"`
	IsLate   bool                `json:"isLate"`
	DaysLate int                 `json:"daysLate"`
}

// Service runs borrow and return transitions.
type Service struct {
	store     *repository.Store
	ledger    *inventory.Ledger
	cache     cache.Cache
	metrics   *metrics.Metrics
	logger    *zap.Logger
	observers []Observer

	loanDays       int
	loc            *time.Location
	now            func() time.Time
	overrideNotify bool
}

// NewService constructs a Service. c and m may be nil.
func NewService(store *repository.Store, ledger *inventory.Ledger, c cache.Cache, m *metrics.Metrics, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.LoanPeriodDays <= 0 {
		opts.LoanPeriodDays = LoanPeriodDays
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:          store,
		ledger:         ledger,
		cache:          c,
		metrics:        m,
		logger:         logger,
		loanDays:       opts.LoanPeriodDays,
		loc:            opts.Location,
		now:            opts.Now,
		overrideNotify: opts.AdminOverrideNotify,
	}
}

// Subscribe registers an observer. Call before serving traffic.
func (s *Service) Subscribe(o Observer) {
	s.observers = append(s.observers, o)
}

// Today is the current civil date in the library's time zone.
func (s *Service) Today() time.Time {
	return model.DateOf(s.now(), s.loc)
}

// Borrow lends one copy of a book to a user.
func (s *Service) Borrow(ctx context.Context, userID, bookID string) (*model.BorrowRecord, error) {
	userID, bookID = strings.TrimSpace(userID), strings.TrimSpace(bookID)
	if userID == "" || bookID == "" {
		return nil, apperr.Validation("userId and bookId are required")
	}

	var rec *model.BorrowRecord
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		book, err := tx.GetBook(ctx, bookID)
		if err != nil {
			return notFound(err, apperr.ErrBookNotFound)
		}
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return notFound(err, apperr.ErrUserNotFound)
		}
		if user.Status != model.AccountApproved {
			return apperr.ErrAccountNotApproved
		}

		ledger := s.ledger.WithTx(tx.DB())
		avail, err := ledger.CheckAvailability(ctx, bookID)
		if err != nil {
			return err
		}
		if !avail.Available {
			return apperr.ErrOutOfStock
		}
		if _, err := tx.FindOpenRecord(ctx, userID, bookID); err == nil {
			return apperr.ErrAlreadyBorrowed
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		today := s.Today()
		rec = &model.BorrowRecord{
			UserID:      userID,
			BookID:      bookID,
			ReceiptCode: receipt.NewCode(),
			BorrowDate:  today,
			DueDate:     today.AddDate(0, 0, s.loanDays),
			Status:      model.StatusBorrowed,
			CreatedAt:   s.now().UTC(),
		}
		if err := tx.CreateRecord(ctx, rec); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.ErrAlreadyBorrowed
			}
			return err
		}
		left, err := ledger.Decrement(ctx, bookID)
		if err != nil {
			return err
		}
		if err := tx.TouchUser(ctx, userID, s.now().UTC()); err != nil {
			return err
		}
		book.AvailableCopies = left
		rec.Book = book
		rec.User = user
		return nil
	})
	if err != nil {
		s.metrics.Borrow(resultLabel(err))
		return nil, fmt.Errorf("borrow: %w", err)
	}
	s.metrics.Borrow("ok")
	s.logger.Info("book borrowed",
		zap.String("record_id", rec.ID),
		zap.String("user_id", userID),
		zap.String("book_id", bookID),
		zap.Time("due_date", rec.DueDate),
	)
	s.afterCommit(ctx, Event{Kind: EventBorrowed, Record: rec, Notify: true})
	return rec, nil
}

// Return closes an open loan and puts the copy back on the shelf.
func (s *Service) Return(ctx context.Context, recordID string) (*ReturnResult, error) {
	return s.returnRecord(ctx, recordID, false)
}

func (s *Service) returnRecord(ctx context.Context, recordID string, override bool) (*ReturnResult, error) {
	if strings.TrimSpace(recordID) == "" {
		return nil, apperr.Validation("record id is required")
	}

	var res *ReturnResult
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		rec, err := tx.GetRecord(ctx, recordID)
		if err != nil {
			return notFound(err, apperr.ErrRecordNotFound)
		}
		if rec.Status == model.StatusReturned {
			return apperr.ErrAlreadyReturned
		}
		today := s.Today()
		ok, err := tx.MarkReturned(ctx, recordID, today)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrAlreadyReturned
		}
		left, err := s.ledger.WithTx(tx.DB()).Increment(ctx, rec.BookID)
		if err != nil {
			return err
		}
		rec.Status = model.StatusReturned
		rec.ReturnDate = &today
		if rec.Book != nil {
			rec.Book.AvailableCopies = left
		}
		late, days := model.Lateness(rec.DueDate, today)
		res = &ReturnResult{Record: rec, IsLate: late, DaysLate: days}
		return nil
	})
	if err != nil {
		s.metrics.Return(resultLabel(err))
		return nil, fmt.Errorf("return: %w", err)
	}
	s.metrics.Return("ok")
	s.logger.Info("book returned",
		zap.String("record_id", recordID),
		zap.Bool("late", res.IsLate),
		zap.Int("days_late", res.DaysLate),
		zap.Bool("override", override),
	)
	s.afterCommit(ctx, Event{
		Kind:     EventReturned,
		Record:   res.Record,
		IsLate:   res.IsLate,
		DaysLate: res.DaysLate,
		Override: override,
		Notify:   !override || s.overrideNotify,
	})
	return res, nil
}

// SetStatus is the administrator override. RETURNED goes through the same
// path as Return. BORROWED is accepted only for a loan that is already
// open; reopening a returned loan must be a new Borrow.
func (s *Service) SetStatus(ctx context.Context, recordID string, status model.BorrowStatus) (*model.BorrowRecord, error) {
	switch status {
	case model.StatusReturned:
		res, err := s.returnRecord(ctx, recordID, true)
		if err != nil {
			return nil, err
		}
		return res.Record, nil
	case model.StatusBorrowed:
		rec, err := s.Get(ctx, recordID)
		if err != nil {
			return nil, err
		}
		if rec.Status != model.StatusBorrowed {
			return nil, fmt.Errorf("set status: %w", apperr.ErrInvalidTransition)
		}
		return rec, nil
	default:
		return nil, apperr.Validation(fmt.Sprintf("unknown status %q", status))
	}
}

// Get returns one record with its book and user.
func (s *Service) Get(ctx context.Context, recordID string) (*model.BorrowRecord, error) {
	rec, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", notFound(err, apperr.ErrRecordNotFound))
	}
	return rec, nil
}

// DisplayStatus classifies a record as of today without mutating it.
func (s *Service) DisplayStatus(rec *model.BorrowRecord) model.DisplayStatus {
	return rec.DisplayStatus(s.Today())
}

// afterCommit runs once the transaction is durable. It detaches from the
// caller's cancellation so a dropped client cannot lose follow-up jobs.
func (s *Service) afterCommit(ctx context.Context, ev Event) {
	ctx = context.WithoutCancel(ctx)
	keys := []string{
		cache.BookDetail(ev.Record.BookID),
		cache.BorrowDetail(ev.Record.ID),
		cache.UserDetail(ev.Record.UserID),
		cache.KeyAnalyticsDashboard,
	}
	if err := cache.Invalidate(ctx, s.cache, keys,
		cache.KeyBooksAll, cache.KeyBorrowRecords, cache.KeyUsersAll, cache.KeyAnalyticsTrends, cache.KeyAnalyticsStats); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("record_id", ev.Record.ID), zap.Error(err))
	}
	for _, o := range s.observers {
		o.Observe(ctx, ev)
	}
}

// notFound turns a repository miss into the given domain error.
func notFound(err error, domain *apperr.Error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain
	}
	return err
}

func resultLabel(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "error"
}
