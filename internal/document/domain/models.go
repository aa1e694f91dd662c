// Package domain contains persistence models for the document service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Document kinds.
const (
	KindDocument = "document"
	KindPhoto    = "photo"
)

// Document is an uploaded file attached to a project. The bytes live in
// blob storage; this row is the metadata.
type Document struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	ProjectID   snowflake.ID `gorm:"not null;index" json:"project_id"`
	UploaderID  snowflake.ID `gorm:"column:uploader_id;not null" json:"uploader_id"`
	Kind        string       `gorm:"type:text;not null;index" json:"kind"`
	FileName    string       `gorm:"type:text;not null" json:"file_name"`
	ContentType string       `gorm:"type:text;not null" json:"content_type"`
	SizeBytes   int64        `gorm:"not null" json:"size_bytes"`
	StoragePath string       `gorm:"type:text;not null" json:"-"`
	Checksum    string       `gorm:"type:text;not null" json:"checksum"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Document) TableName() string { return "documents" }
