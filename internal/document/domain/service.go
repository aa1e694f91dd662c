package domain

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Upload statuses reported per item in a batch.
const (
	UploadAccepted = "accepted"
	UploadRejected = "rejected"
)

type Service interface {
	BatchUpload(ctx context.Context, userID snowflake.ID, projectID string, kind string, files []FileUpload) ([]UploadResult, error)
	Get(ctx context.Context, documentID string) (*DocumentResponse, error)
	Open(ctx context.Context, documentID string) (*DocumentResponse, io.ReadCloser, error)
	ListByProject(ctx context.Context, projectID string, kind string) ([]DocumentResponse, error)
	Delete(ctx context.Context, documentID string) error
}

type FileUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

type UploadResult struct {
	FileName   string `json:"file_name"`
	Status     string `json:"status"`
	DocumentID string `json:"document_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type DocumentResponse struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	UploaderID  string    `json:"uploader_id"`
	Kind        string    `json:"kind"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Checksum    string    `json:"checksum"`
	CreatedAt   time.Time `json:"created_at"`
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, document Document) error
	Get(ctx context.Context, id snowflake.ID) (*Document, error)
	ListByProject(ctx context.Context, projectID snowflake.ID, kind string) ([]Document, error)
	Delete(ctx context.Context, id snowflake.ID) error
}

var (
	ErrNotFound        = errors.New("document_not_found")
	ErrInvalidProject  = errors.New("invalid_project")
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidKind     = errors.New("invalid_kind")
	ErrNoFiles         = errors.New("no_files")
	ErrTooManyFiles    = errors.New("too_many_files")
)
