// Package domain contains persistence models for the invitation service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Invitation statuses. Pending invitations become terminal exactly once;
// terminal statuses never change again.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusDeclined = "declined"
	StatusRevoked  = "revoked"
	StatusExpired  = "expired"
)

// Roles an invitation may grant. The client role is reserved for the
// project owner and is never granted through an invitation.
const (
	RoleContractor     = "contractor"
	RoleProjectManager = "project_manager"
	RoleInspector      = "inspector"
	RoleRelative       = "relative"
)

// Invitation tracks a single-use invite to join a project. Only the
// SHA-256 of the raw token is stored; the raw token leaves the system
// once, inside the invite link.
type Invitation struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	ProjectID   snowflake.ID  `gorm:"not null;index" json:"project_id"`
	Email       string        `gorm:"type:text;not null;index" json:"email"`
	Role        string        `gorm:"type:text;not null" json:"role"`
	TokenHash   string        `gorm:"type:text;not null;uniqueIndex:ux_invitations_token_hash" json:"-"`
	Status      string        `gorm:"type:text;not null;default:pending;index" json:"status"`
	InvitedBy   snowflake.ID  `gorm:"column:invited_by;not null" json:"invited_by"`
	AcceptedBy  *snowflake.ID `gorm:"column:accepted_by" json:"accepted_by"`
	ExpiresAt   time.Time     `gorm:"not null;index" json:"expires_at"`
	ProcessedAt *time.Time    `json:"processed_at"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invitation) TableName() string { return "invitations" }

// ValidRole reports whether role may be granted through an invitation.
func ValidRole(role string) bool {
	switch role {
	case RoleContractor, RoleProjectManager, RoleInspector, RoleRelative:
		return true
	}
	return false
}

// Terminal reports whether status will never change again.
func Terminal(status string) bool {
	switch status {
	case StatusAccepted, StatusDeclined, StatusRevoked, StatusExpired:
		return true
	}
	return false
}
