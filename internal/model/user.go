package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role grants access to admin operations.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// AccountStatus tracks the account-request review. It moves away from
// PENDING exactly once.
type AccountStatus string

const (
	AccountPending  AccountStatus = "PENDING"
	AccountApproved AccountStatus = "APPROVED"
	AccountRejected AccountStatus = "REJECTED"
)

// User is a library member or administrator.
type User struct {
	ID               string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	FullName         string        `gorm:"type:varchar(255);not null" json:"fullName"`
	Email            string        `gorm:"type:varchar(255);not null;uniqueIndex:idx_users_email" json:"email"`
	UniversityID     int64         `gorm:"not null;uniqueIndex:idx_users_university_id" json:"universityId"`
	PasswordHash     string        `gorm:"type:varchar(255);not null" json:"-"`
	UniversityCard   string        `gorm:"type:text" json:"universityCard"`
	Role             Role          `gorm:"type:varchar(16);not null" json:"role"`
	Status           AccountStatus `gorm:"type:varchar(16);not null;index:idx_users_status" json:"status"`
	LastActivityDate time.Time     `gorm:"not null" json:"lastActivityDate"`
	CreatedAt        time.Time     `gorm:"not null;index:idx_users_created_at" json:"createdAt"`
}

// TableName specifies the table name for User.
func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns an id and timestamps when the caller left them empty.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.LastActivityDate.IsZero() {
		u.LastActivityDate = now
	}
	return nil
}
