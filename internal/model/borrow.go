package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BorrowStatus is the persisted loan state. NONE is never stored: it is the
// absence of an open record for a (user, book) pair.
type BorrowStatus string

const (
	StatusBorrowed BorrowStatus = "BORROWED"
	StatusReturned BorrowStatus = "RETURNED"
)

// Valid reports whether s is a persisted status.
func (s BorrowStatus) Valid() bool {
	return s == StatusBorrowed || s == StatusReturned
}

// DisplayStatus is derived at read time and never written back.
type DisplayStatus string

const (
	DisplayBorrowed   DisplayStatus = "BORROWED"
	DisplayReturned   DisplayStatus = "RETURNED"
	DisplayLateReturn DisplayStatus = "LATE_RETURN"
)

// BorrowRecord is one loan of one copy of a book to one user. Dates are
// date-only values; see DateOf.
type BorrowRecord struct {
	ID          string       `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID      string       `gorm:"type:varchar(36);not null;index:idx_borrow_records_user" json:"userId"`
	BookID      string       `gorm:"type:varchar(36);not null;index:idx_borrow_records_book" json:"bookId"`
	ReceiptCode string       `gorm:"type:varchar(32);not null;uniqueIndex:idx_borrow_records_receipt" json:"receiptId"`
	BorrowDate  time.Time    `gorm:"not null;index:idx_borrow_records_borrow_date" json:"borrowDate"`
	DueDate     time.Time    `gorm:"not null" json:"dueDate"`
	ReturnDate  *time.Time   `json:"returnDate"`
	Status      BorrowStatus `gorm:"type:varchar(16);not null;index:idx_borrow_records_status" json:"status"`
	CreatedAt   time.Time    `gorm:"not null" json:"createdAt"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Book *Book `gorm:"foreignKey:BookID" json:"book,omitempty"`
}

// TableName specifies the table name for BorrowRecord.
func (BorrowRecord) TableName() string {
	return "borrow_records"
}

// BeforeCreate assigns an id and timestamp when the caller left them empty.
func (r *BorrowRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return nil
}

// DisplayStatus classifies the record for presentation without mutating it.
func (r *BorrowRecord) DisplayStatus(today time.Time) DisplayStatus {
	if r.ReturnDate != nil {
		return DisplayReturned
	}
	if r.Status == StatusBorrowed && r.DueDate.Before(today) {
		return DisplayLateReturn
	}
	if r.Status == StatusReturned {
		return DisplayReturned
	}
	return DisplayBorrowed
}

// LoanDays is the length of the loan in calendar days.
func (r *BorrowRecord) LoanDays() int {
	return DaysBetween(r.BorrowDate, r.DueDate)
}

// Lateness compares a return date with a due date at calendar-day
// granularity. Returning on the due date is on time.
func Lateness(dueDate, returnDate time.Time) (bool, int) {
	days := DaysBetween(dueDate, returnDate)
	if days <= 0 {
		return false, 0
	}
	return true, days
}
