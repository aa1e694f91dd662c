// Package domain contains persistence models for the project service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Project statuses.
const (
	StatusPending    = "pending"
	StatusApproved   = "approved"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Member roles within a project. The client is the owning party; the
// rest join through invitations.
const (
	RoleClient         = "client"
	RoleContractor     = "contractor"
	RoleProjectManager = "project_manager"
	RoleInspector      = "inspector"
	RoleRelative       = "relative"
	RoleSupplier       = "supplier"
)

// Project represents a construction project.
type Project struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	OwnerID       snowflake.ID      `gorm:"not null;index" json:"owner_id"`
	Name          string            `gorm:"type:text;not null" json:"name"`
	Slug          string            `gorm:"type:text;not null;uniqueIndex:ux_projects_slug" json:"slug"`
	Description   string            `gorm:"type:text" json:"description"`
	Address       string            `gorm:"type:text" json:"address"`
	Status        string            `gorm:"type:text;not null;default:pending" json:"status"`
	Progress      int               `gorm:"not null;default:0" json:"progress"`
	Version       int64             `gorm:"not null;default:0" json:"version"`
	StartDate     *time.Time        `json:"start_date"`
	TargetEndDate *time.Time        `json:"target_end_date"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Project) TableName() string { return "projects" }

// ProjectMember represents membership of a user in a project.
type ProjectMember struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	ProjectID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_project_user,priority:1" json:"project_id"`
	UserID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_project_user,priority:2" json:"user_id"`
	Role      string       `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (ProjectMember) TableName() string { return "project_members" }

// ValidRole reports whether role is a known project member role.
func ValidRole(role string) bool {
	switch role {
	case RoleClient, RoleContractor, RoleProjectManager, RoleInspector, RoleRelative, RoleSupplier:
		return true
	}
	return false
}

// CanTransition reports whether a project may move from one status to
// another.
func CanTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusApproved || to == StatusCancelled
	case StatusApproved:
		return to == StatusInProgress || to == StatusCancelled
	case StatusInProgress:
		return to == StatusCompleted || to == StatusCancelled
	}
	return false
}
