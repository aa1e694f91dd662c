// Package domain contains persistence models for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Account types. Admins reach the back-office; the rest are the
// collaborating parties on a construction project.
const (
	AccountClient     = "client"
	AccountContractor = "contractor"
	AccountSupplier   = "supplier"
	AccountAdmin      = "admin"
)

// User represents an authenticated identity.
type User struct {
	ID                  snowflake.ID `gorm:"primaryKey" json:"id"`
	Email               string       `gorm:"type:text;not null;uniqueIndex:ux_users_email" json:"email"`
	DisplayName         string       `gorm:"type:text;not null" json:"display_name"`
	AccountType         string       `gorm:"type:text;not null;default:client" json:"account_type"`
	PasswordHash        *string      `gorm:"type:text" json:"-"`
	IsDefault           bool         `gorm:"column:is_default" json:"is_default"`
	LastPasswordChanged *time.Time   `json:"last_password_changed"`
	CreatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// ValidAccountType reports whether s is one of the known account types.
func ValidAccountType(s string) bool {
	switch s {
	case AccountClient, AccountContractor, AccountSupplier, AccountAdmin:
		return true
	}
	return false
}

// Session is a server-side login session. Only the SHA-256 of the raw
// token is stored.
type Session struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID `gorm:"not null;index" json:"user_id"`
	TokenHash string       `gorm:"type:text;not null;uniqueIndex:ux_sessions_token_hash" json:"-"`
	ExpiresAt time.Time    `gorm:"not null" json:"expires_at"`
	RevokedAt *time.Time   `json:"revoked_at"`
	UserAgent string       `gorm:"type:text" json:"user_agent"`
	IPAddress string       `gorm:"type:text" json:"ip_address"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }
