package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLateness(t *testing.T) {
	due := Date(2024, time.January, 10)

	late, days := Lateness(due, Date(2024, time.January, 13))
	assert.True(t, late)
	assert.Equal(t, 3, days)

	late, days = Lateness(due, Date(2024, time.January, 10))
	assert.False(t, late)
	assert.Equal(t, 0, days)

	late, days = Lateness(due, Date(2024, time.January, 2))
	assert.False(t, late)
	assert.Equal(t, 0, days)
}

func TestDisplayStatus(t *testing.T) {
	today := Date(2024, time.March, 1)
	returned := Date(2024, time.February, 20)

	tests := []struct {
		name   string
		record BorrowRecord
		want   DisplayStatus
	}{
		{"open and not due", BorrowRecord{Status: StatusBorrowed, DueDate: Date(2024, time.March, 5)}, DisplayBorrowed},
		{"due today", BorrowRecord{Status: StatusBorrowed, DueDate: today}, DisplayBorrowed},
		{"overdue", BorrowRecord{Status: StatusBorrowed, DueDate: Date(2024, time.February, 28)}, DisplayLateReturn},
		{"returned", BorrowRecord{Status: StatusReturned, DueDate: Date(2024, time.February, 1), ReturnDate: &returned}, DisplayReturned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.record.Status
			assert.Equal(t, tt.want, tt.record.DisplayStatus(today))
			assert.Equal(t, before, tt.record.Status)
		})
	}
}

func TestDateOfUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	instant := time.Date(2024, time.May, 31, 20, 30, 0, 0, time.UTC)

	assert.Equal(t, Date(2024, time.May, 31), DateOf(instant, time.UTC))
	assert.Equal(t, Date(2024, time.June, 1), DateOf(instant, loc))
	assert.Equal(t, Date(2024, time.May, 31), DateOf(instant, nil))
}

func TestLoanDays(t *testing.T) {
	r := BorrowRecord{BorrowDate: Date(2024, time.February, 20), DueDate: Date(2024, time.March, 5)}
	assert.Equal(t, 14, r.LoanDays())
}

func TestValidEnums(t *testing.T) {
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("OWNER").Valid())
	assert.True(t, StatusReturned.Valid())
	assert.False(t, BorrowStatus("LATE_RETURN").Valid())
}
