// Package domain contains persistence models for the timeline service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Construction phases a timeline entry can report on.
const (
	PhaseGroundwork = "groundwork"
	PhaseFoundation = "foundation"
	PhaseFraming    = "framing"
	PhaseRoofing    = "roofing"
	PhaseExterior   = "exterior"
	PhaseInterior   = "interior"
	PhaseFinishing  = "finishing"
	PhaseHandover   = "handover"
)

// TimelineEntry is an append-only progress record on a project.
type TimelineEntry struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	ProjectID  snowflake.ID `gorm:"not null;index" json:"project_id"`
	AuthorID   snowflake.ID `gorm:"column:author_id;not null" json:"author_id"`
	Phase      string       `gorm:"type:text;not null" json:"phase"`
	Title      string       `gorm:"type:text;not null" json:"title"`
	Body       string       `gorm:"type:text" json:"body"`
	Progress   int          `gorm:"not null" json:"progress"`
	OccurredAt time.Time    `gorm:"not null;index" json:"occurred_at"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (TimelineEntry) TableName() string { return "timeline_entries" }

// TimelineImage links a photo document to a timeline entry.
type TimelineImage struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	EntryID    snowflake.ID `gorm:"not null;index" json:"entry_id"`
	DocumentID snowflake.ID `gorm:"not null" json:"document_id"`
	Caption    string       `gorm:"type:text" json:"caption"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (TimelineImage) TableName() string { return "timeline_images" }

// ValidPhase reports whether phase is a known construction phase.
func ValidPhase(phase string) bool {
	switch phase {
	case PhaseGroundwork, PhaseFoundation, PhaseFraming, PhaseRoofing,
		PhaseExterior, PhaseInterior, PhaseFinishing, PhaseHandover:
		return true
	}
	return false
}
