// Package analytics computes the admin dashboard figures.
package analytics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/BookWise/internal/apperr"
	"github.com/dharsanguruparan/BookWise/internal/cache"
	"github.com/dharsanguruparan/BookWise/internal/model"
	"github.com/dharsanguruparan/BookWise/internal/repository"
)

const (
	topBooksLimit       = 5
	recentActivityLimit = 10
	maxTrendDays  = 365
	dayLayout     = "2006-01-02"
)

// Dashboard is the summary shown on the admin home page.
type Dashboard struct {
	TotalUsers         int64                        `json:"totalUsers"`
	TotalBooks         int64                        `json:"totalBooks"`
	TotalBorrowedBooks int64                        `json:"totalBorrowedBooks"`
	PendingRequests    int64                        `json:"pendingRequests"`
	NewUsersThisMonth  int64                        `json:"newUsersThisMonth"`
	NewBooksThisMonth  int64                        `json:"newBooksThisMonth"`
	BorrowsThisMonth   int64                        `json:"borrowsThisMonth"`
	AvailableBooks     int64                        `json:"availableBooks"`
	TopBooks           []repository.BookBorrowCount `json:"topBooks"`
}

// TrendPoint is one day of activity.
type TrendPoint struct {
	Date     string `json:"date"`
	Borrowed int    `json:"borrowed"`
	Returned int    `json:"returned"`
	NewUsers int    `json:"newUsers"`
	NewBooks int    `json:"newBooks"`
}

// Options tunes a Service.
type Options struct {
	Location *time.Location
	Now      func() time.Time
}

// Service reads aggregate figures, caching them briefly.
type Service struct {
	store  *repository.Store
	cache  cache.Cache
	logger *zap.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewService constructs a Service. c may be nil.
func NewService(store *repository.Store, c cache.Cache, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: store, cache: c, logger: logger, loc: opts.Location, now: opts.Now}
}

// Dashboard returns the counters and the most borrowed books.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	return cache.Fetch(ctx, s.cache, cache.KeyAnalyticsDashboard, cache.TTLMedium, s.loadDashboard)
}

func (s *Service) loadDashboard(ctx context.Context) (*Dashboard, error) {
	today := model.DateOf(s.now(), s.loc)
	monthStart := model.Date(today.Year(), today.Month(), 1)
	counts, err := s.store.CountAll(ctx, monthStart)
	if err != nil {
		return nil, fmt.Errorf("dashboard counts: %w", err)
	}
	top, err := s.loadTopBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	return &Dashboard{
		TotalUsers:         counts.TotalUsers,
		TotalBooks:         counts.TotalBooks,
		TotalBorrowedBooks: counts.TotalBorrowedBooks,
		PendingRequests:    counts.PendingRequests,
		NewUsersThisMonth:  counts.NewUsersSince,
		NewBooksThisMonth:  counts.NewBooksSince,
		BorrowsThisMonth:   counts.BorrowsSince,
		AvailableBooks:     counts.AvailableCopies,
		TopBooks:           top,
	}, nil
}

// Sections of the statistics feed.
const (
	SectionAll              = "all"
	SectionTopBooks         = "top-books"
	SectionRecentActivities = "recent-activities"
)

// Stats is the statistics feed. Sections not requested are omitted.
type Stats struct {
	TopBooks         []repository.BookBorrowCount `json:"topBooks,omitempty"`
	RecentActivities []repository.Activity        `json:"recentActivities,omitempty"`
}

// Stats returns the requested section of the feed, or every section for
// SectionAll or an empty section. Each section is cached on its own.
func (s *Service) Stats(ctx context.Context, section string) (*Stats, error) {
	if section == "" {
		section = SectionAll
	}
	out := &Stats{}
	switch section {
	case SectionAll, SectionTopBooks, SectionRecentActivities:
	default:
		return nil, apperr.Validation(fmt.Sprintf("invalid type %q", section))
	}
	if section != SectionRecentActivities {
		top, err := cache.Fetch(ctx, s.cache, cache.AnalyticsStats(SectionTopBooks), cache.TTLMedium, s.loadTopBooks)
		if err != nil {
			return nil, err
		}
		out.TopBooks = top
	}
	if section != SectionTopBooks {
		feed, err := cache.Fetch(ctx, s.cache, cache.AnalyticsStats(SectionRecentActivities), cache.TTLShort,
			func(ctx context.Context) ([]repository.Activity, error) {
				feed, err := s.store.RecentActivities(ctx, recentActivityLimit)
				if err != nil {
					return nil, fmt.Errorf("recent activities: %w", err)
				}
				return feed, nil
			})
		if err != nil {
			return nil, err
		}
		out.RecentActivities = feed
	}
	return out, nil
}

func (s *Service) loadTopBooks(ctx context.Context) ([]repository.BookBorrowCount, error) {
	top, err := s.store.TopBooks(ctx, topBooksLimit)
	if err != nil {
		return nil, fmt.Errorf("top books: %w", err)
	}
	if top == nil {
		top = []repository.BookBorrowCount{}
	}
	return top, nil
}

// Trends returns one point per day for the last days days, oldest first,
// including today. Days without activity are present with zero counts.
func (s *Service) Trends(ctx context.Context, days int) ([]TrendPoint, error) {
	if days < 1 || days > maxTrendDays {
		return nil, apperr.Validation(fmt.Sprintf("days must be between 1 and %d", maxTrendDays))
	}
	key := cache.ListKey(cache.KeyAnalyticsTrends, "days", days)
	return cache.Fetch(ctx, s.cache, key, cache.TTLMedium, func(ctx context.Context) ([]TrendPoint, error) {
		return s.loadTrends(ctx, days)
	})
}

func (s *Service) loadTrends(ctx context.Context, days int) ([]TrendPoint, error) {
	today := model.DateOf(s.now(), s.loc)
	start := today.AddDate(0, 0, -(days - 1))

	points := make([]TrendPoint, days)
	index := make(map[string]*TrendPoint, days)
	for i := range points {
		points[i].Date = start.AddDate(0, 0, i).Format(dayLayout)
		index[points[i].Date] = &points[i]
	}
	bump := func(day time.Time, field func(*TrendPoint)) {
		if p, ok := index[day.Format(dayLayout)]; ok {
			field(p)
		}
	}

	loans, err := s.store.LoanActivitySince(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("trends loans: %w", err)
	}
	for _, l := range loans {
		bump(l.BorrowDate, func(p *TrendPoint) { p.Borrowed++ })
		if l.ReturnDate != nil {
			bump(*l.ReturnDate, func(p *TrendPoint) { p.Returned++ })
		}
	}

	// Creation times are instants; bucket them by the library's civil date.
	startInstant := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, s.loc)
	users, err := s.store.UsersCreatedSince(ctx, startInstant)
	if err != nil {
		return nil, fmt.Errorf("trends users: %w", err)
	}
	for _, t := range users {
		bump(model.DateOf(t, s.loc), func(p *TrendPoint) { p.NewUsers++ })
	}
	books, err := s.store.BooksCreatedSince(ctx, startInstant)
	if err != nil {
		return nil, fmt.Errorf("trends books: %w", err)
	}
	for _, t := range books {
		bump(model.DateOf(t, s.loc), func(p *TrendPoint) { p.NewBooks++ })
	}
	return points, nil
}
