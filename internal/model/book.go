// Package model contains the persisted BookWise entities and the small pure
// helpers derived from them.
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Book is a catalog title with its copy counts. AvailableCopies is owned by
// the inventory ledger and must stay within [0, TotalCopies].
type Book struct {
	ID              string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Title           string    `gorm:"type:varchar(255);not null;index:idx_books_title" json:"title"`
	Author          string    `gorm:"type:varchar(255);not null;index:idx_books_author" json:"author"`
	Genre           string    `gorm:"type:varchar(100);not null;index:idx_books_genre" json:"genre"`
	Rating          int       `gorm:"not null;check:chk_books_rating,rating >= 0 AND rating <= 5" json:"rating"`
	TotalCopies     int       `gorm:"not null;check:chk_books_total,total_copies >= 0" json:"totalCopies"`
	AvailableCopies int       `gorm:"not null;check:chk_books_available,available_copies >= 0 AND available_copies <= total_copies" json:"availableCopies"`
	Description     string    `gorm:"type:text" json:"description"`
	CoverURL        string    `gorm:"type:text" json:"coverUrl"`
	CoverColor      string    `gorm:"type:varchar(7)" json:"coverColor"`
	VideoURL        string    `gorm:"type:text" json:"videoUrl"`
	Summary         string    `gorm:"type:text" json:"summary"`
	CreatedAt       time.Time `gorm:"not null;index:idx_books_created_at" json:"createdAt"`
}

// TableName specifies the table name for Book.
func (Book) TableName() string {
	return "books"
}

// BeforeCreate assigns an id and timestamp when the caller left them empty.
func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return nil
}
