// Package domain contains persistence models for the notification service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Notification kinds.
const (
	KindInvitationIssued = "invitation_issued"
	KindBidAwarded       = "bid_awarded"
)

// Notification is an in-app message for a user. Email delivery, when
// configured, happens alongside the row insert.
type Notification struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID        *snowflake.ID `gorm:"index" json:"user_id"`
	Email         string        `gorm:"type:text;not null;index" json:"email"`
	Kind          string        `gorm:"type:text;not null" json:"kind"`
	Subject       string        `gorm:"type:text;not null" json:"subject"`
	Body          string        `gorm:"type:text" json:"body"`
	CorrelationID string        `gorm:"type:text" json:"correlation_id"`
	ReadAt        *time.Time    `json:"read_at"`
	CreatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }
