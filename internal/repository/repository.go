// Package repository wraps the gorm queries used by the services, API and
// worker. Callers compare errors against ErrNotFound and ErrDuplicate.
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Store is the data access entry point. A Store returned by Transaction is
// bound to that transaction.
type Store struct {
	db *gorm.DB
}

// New constructs a Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for collaborators that issue their own
// statements inside the same transaction.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn in a database transaction. Inside fn only tx may be
// used; touching the outer Store would need a second connection.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// Page normalises pagination input.
type Page struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Normalize applies the default and maximum page size.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

func (p Page) apply(q *gorm.DB) *gorm.DB {
	p = p.Normalize()
	return q.Offset((p.Page - 1) * p.Limit).Limit(p.Limit)
}
