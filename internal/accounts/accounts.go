// Package accounts handles member sign-up, the one-time account review, role
// changes and account deletion.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dharsanguruparan/BookWise/internal/apperr"
	"github.com/dharsanguruparan/BookWise/internal/cache"
	"github.com/dharsanguruparan/BookWise/internal/inventory"
	"github.com/dharsanguruparan/BookWise/internal/model"
	"github.com/dharsanguruparan/BookWise/internal/notify"
	"github.com/dharsanguruparan/BookWise/internal/repository"
)

const minPasswordLength = 8

// Notifier sends member-facing messages. *notify.Dispatcher satisfies it.
type Notifier interface {
	NotifyUser(ctx context.Context, ev notify.Event, user *model.User, data notify.Data)
}

// Registration is the input to Register and CreateByAdmin.
type Registration struct {
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	UniversityID   int64  `json:"universityId"`
	Password       string `json:"password"`
	UniversityCard string `json:"universityCard"`
}

// UserSummary is a user as the admin list shows it.
type UserSummary struct {
	model.User
	BooksBorrowed int64 `json:"booksBorrowed"`
}

// UserPage is one page of users.
type UserPage struct {
	Users []UserSummary `json:"users"`
	Total int64        `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

// Service manages accounts.
type Service struct {
	store    *repository.Store
	ledger   *inventory.Ledger
	cache    cache.Cache
	notifier Notifier
	logger   *zap.Logger
	cost     int
}

// NewService constructs a Service. c and n may be nil.
func NewService(store *repository.Store, ledger *inventory.Ledger, c cache.Cache, n Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, ledger: ledger, cache: c, notifier: n, logger: logger, cost: bcrypt.DefaultCost}
}

// Register creates a PENDING account awaiting review.
func (s *Service) Register(ctx context.Context, in Registration) (*model.User, error) {
	user, err := s.create(ctx, in, model.AccountPending)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, notify.EventWelcome, user, notify.Data{})
	return user, nil
}

// CreateByAdmin creates an account that is approved from the start.
func (s *Service) CreateByAdmin(ctx context.Context, in Registration) (*model.User, error) {
	return s.create(ctx, in, model.AccountApproved)
}

func (s *Service) create(ctx context.Context, in Registration, status model.AccountStatus) (*model.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validate(in); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{
		FullName:       in.FullName,
		Email:          in.Email,
		UniversityID:   in.UniversityID,
		PasswordHash:   string(hash),
		UniversityCard: in.UniversityCard,
		Role:           model.RoleUser,
		Status:         status,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.ErrEmailTaken.WithMessage("An account with this email or university ID already exists")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("account created", zap.String("user_id", user.ID), zap.String("status", string(status)))
	s.invalidate(ctx, user.ID)
	return user, nil
}

// CheckPassword reports whether password matches the user's hash.
func CheckPassword(user *model.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// Approve moves a PENDING account to APPROVED.
func (s *Service) Approve(ctx context.Context, id string) (*model.User, error) {
	return s.review(ctx, id, model.AccountApproved, notify.EventAccountApproved)
}

// Reject moves a PENDING account to REJECTED.
func (s *Service) Reject(ctx context.Context, id string) (*model.User, error) {
	return s.review(ctx, id, model.AccountRejected, notify.EventAccountRejected)
}

// Review dispatches to Approve or Reject.
func (s *Service) Review(ctx context.Context, id string, status model.AccountStatus) (*model.User, error) {
	switch status {
	case model.AccountApproved:
		return s.Approve(ctx, id)
	case model.AccountRejected:
		return s.Reject(ctx, id)
	default:
		return nil, apperr.Validation(fmt.Sprintf("status must be %s or %s", model.AccountApproved, model.AccountRejected))
	}
}

func (s *Service) review(ctx context.Context, id string, to model.AccountStatus, ev notify.Event) (*model.User, error) {
	ok, err := s.store.TransitionUserStatus(ctx, id, model.AccountPending, to)
	if err != nil {
		return nil, fmt.Errorf("review account: %w", err)
	}
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("review account: %w", notFound(err))
	}
	if !ok {
		return nil, apperr.ErrAccountAlreadyReviewed
	}
	s.logger.Info("account reviewed", zap.String("user_id", id), zap.String("status", string(to)))
	s.invalidate(ctx, id)
	s.notify(ctx, ev, user, notify.Data{})
	return user, nil
}

// ChangeRole sets a user's role. It may be called any number of times.
func (s *Service) ChangeRole(ctx context.Context, id string, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("role must be %s or %s", model.RoleUser, model.RoleAdmin))
	}
	if err := s.store.UpdateUserRole(ctx, id, role); err != nil {
		return nil, fmt.Errorf("change role: %w", notFound(err))
	}
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("change role: %w", notFound(err))
	}
	s.logger.Info("role changed", zap.String("user_id", id), zap.String("role", string(role)))
	s.invalidate(ctx, id)
	s.notify(ctx, notify.EventRoleChanged, user, notify.Data{NewRole: string(role)})
	return user, nil
}

// MakeAdmin grants the ADMIN role to the account with the given e-mail.
func (s *Service) MakeAdmin(ctx context.Context, email string) (*model.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("make admin: %w", notFound(err))
	}
	if err := s.store.UpdateUserRole(ctx, user.ID, model.RoleAdmin); err != nil {
		return nil, fmt.Errorf("make admin: %w", notFound(err))
	}
	user.Role = model.RoleAdmin
	s.logger.Info("admin granted", zap.String("user_id", user.ID))
	s.invalidate(ctx, user.ID)
	return user, nil
}

// Delete removes a user. In one transaction every open loan is put back on
// the shelf, the user's borrow records are deleted, then the user.
func (s *Service) Delete(ctx context.Context, id string) error {
	var restocked []string
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := tx.GetUser(ctx, id); err != nil {
			return notFound(err)
		}
		open, err := tx.OpenRecordsForUser(ctx, id)
		if err != nil {
			return err
		}
		ledger := s.ledger.WithTx(tx.DB())
		for _, rec := range open {
			if _, err := ledger.Increment(ctx, rec.BookID); err != nil && !errors.Is(err, apperr.ErrBookNotFound) {
				return err
			}
			restocked = append(restocked, rec.BookID)
		}
		if _, err := tx.DeleteRecordsForUser(ctx, id); err != nil {
			return err
		}
		return notFound(tx.DeleteUser(ctx, id))
	})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.logger.Info("user deleted", zap.String("user_id", id), zap.Int("restocked", len(restocked)))
	keys := []string{cache.UserDetail(id), cache.KeyAnalyticsDashboard}
	for _, bookID := range restocked {
		keys = append(keys, cache.BookDetail(bookID))
	}
	if err := cache.Invalidate(ctx, s.cache, keys, cache.KeyUsersAll, cache.KeyBorrowRecords, cache.KeyBooksAll, cache.KeyAnalyticsStats); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("user_id", id), zap.Error(err))
	}
	return nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id string) (*model.User, error) {
	user, err := cache.Fetch(ctx, s.cache, cache.UserDetail(id), cache.TTLMedium, func(ctx context.Context) (*model.User, error) {
		return s.store.GetUser(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", notFound(err))
	}
	return user, nil
}

// List returns a page of users, each with the number of books they have
// ever borrowed.
func (s *Service) List(ctx context.Context, f repository.UserFilter) (*UserPage, error) {
	switch f.Status {
	case "", model.AccountPending, model.AccountApproved, model.AccountRejected:
	default:
		return nil, apperr.Validation(fmt.Sprintf("invalid status %q", f.Status))
	}
	switch f.SortBy {
	case "", repository.SortByName, repository.SortByDate:
	default:
		return nil, apperr.Validation(fmt.Sprintf("invalid sortBy %q", f.SortBy))
	}
	f.Page = f.Page.Normalize()
	key := cache.ListKey(cache.KeyUsersAll,
		"page", f.Page.Page, "limit", f.Page.Limit, "status", f.Status,
		"sort", f.SortBy, "desc", f.Desc, "search", f.Search)
	return cache.Fetch(ctx, s.cache, key, cache.TTLMedium, func(ctx context.Context) (*UserPage, error) {
		users, total, err := s.store.ListUsers(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		ids := make([]string, len(users))
		for i := range users {
			ids[i] = users[i].ID
		}
		counts, err := s.store.BorrowCounts(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		out := make([]UserSummary, len(users))
		for i, u := range users {
			out[i] = UserSummary{User: u, BooksBorrowed: counts[u.ID]}
		}
		return &UserPage{Users: out, Total: total, Page: f.Page.Page, Limit: f.Page.Limit}, nil
	})
}

func (s *Service) notify(ctx context.Context, ev notify.Event, user *model.User, data notify.Data) {
	if s.notifier != nil {
		s.notifier.NotifyUser(ctx, ev, user, data)
	}
}

func (s *Service) invalidate(ctx context.Context, id string) {
	keys := []string{cache.UserDetail(id), cache.KeyAnalyticsDashboard}
	if err := cache.Invalidate(ctx, s.cache, keys, cache.KeyUsersAll, cache.KeyAnalyticsTrends); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("user_id", id), zap.Error(err))
	}
}

func validate(in Registration) error {
	switch {
	case in.FullName == "":
		return apperr.Validation("fullName is required")
	case in.UniversityID <= 0:
		return apperr.Validation("universityId must be a positive number")
	case len(in.Password) < minPasswordLength:
		return apperr.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if _, err := mail.ParseAddress(in.Email); err != nil || !strings.Contains(in.Email, "@") {
		return apperr.Validation("email is invalid")
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.ErrUserNotFound
	}
	return err
}

var _ Notifier = (*notify.Dispatcher)(nil)
