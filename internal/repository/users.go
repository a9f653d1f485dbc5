package repository

import (
	"context"
	"strings"
	"time"

	"github.com/dharsanguruparan/BookWise/internal/model"
)

// User list orderings. The zero value lists newest accounts first.
const (
	SortByName = "name"
	SortByDate = "date"
)

// UserFilter narrows ListUsers.
type UserFilter struct {
	Status model.AccountStatus
	Search string
	SortBy string
	Desc   bool
	Page
}

func (f UserFilter) order() string {
	dir := " ASC"
	if f.Desc {
		dir = " DESC"
	}
	switch f.SortBy {
	case SortByName:
		return "full_name" + dir + ", id"
	case SortByDate:
		return "created_at" + dir + ", id"
	default:
		return "created_at DESC, id"
	}
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := s.conn(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate("select user", err)
	}
	return &user, nil
}

// GetUserByEmail looks a user up by normalised e-mail.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := s.conn(ctx).First(&user, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if err != nil {
		return nil, translate("select user by email", err)
	}
	return &user, nil
}

// CreateUser inserts a user. Unique e-mail or university id collisions
// surface as ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	return translate("insert user", s.conn(ctx).Create(user).Error)
}

// TransitionUserStatus moves a user from one status to another. It reports
// false when the user was not in the expected status.
func (s *Store) TransitionUserStatus(ctx context.Context, id string, from, to model.AccountStatus) (bool, error) {
	res := s.conn(ctx).Model(&model.User{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, translate("update user status", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// UpdateUserRole sets the role.
func (s *Store) UpdateUserRole(ctx context.Context, id string, role model.Role) error {
	res := s.conn(ctx).Model(&model.User{}).Where("id = ?", id).Update("role", role)
	if res.Error != nil {
		return translate("update user role", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("update user role", ErrNotFound)
	}
	return nil
}

// TouchUser records activity for the user.
func (s *Store) TouchUser(ctx context.Context, id string, at time.Time) error {
	err := s.conn(ctx).Model(&model.User{}).Where("id = ?", id).Update("last_activity_date", at).Error
	return translate("touch user", err)
}

// DeleteUser removes a user row.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res := s.conn(ctx).Delete(&model.User{}, "id = ?", id)
	if res.Error != nil {
		return translate("delete user", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("delete user", ErrNotFound)
	}
	return nil
}

// ListUsers returns a page of users and the total matching count.
func (s *Store) ListUsers(ctx context.Context, f UserFilter) ([]model.User, int64, error) {
	q := s.conn(ctx).Model(&model.User{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if term := strings.TrimSpace(strings.ToLower(f.Search)); term != "" {
		like := "%" + term + "%"
		q = q.Where("LOWER(full_name) LIKE ? OR LOWER(email) LIKE ? OR CAST(university_id AS TEXT) LIKE ?", like, like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate("count users", err)
	}
	var users []model.User
	if err := f.Page.apply(q.Order(f.order())).Find(&users).Error; err != nil {
		return nil, 0, translate("list users", err)
	}
	return users, total, nil
}

// UsersCreatedSince returns the creation times of users registered at or after t.
func (s *Store) UsersCreatedSince(ctx context.Context, t time.Time) ([]time.Time, error) {
	var out []time.Time
	err := s.conn(ctx).Model(&model.User{}).Where("created_at >= ?", t).Pluck("created_at", &out).Error
	return out, translate("users created since", err)
}
