package domain

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Image attachment statuses reported per item on append.
const (
	ImageAttached = "attached"
	ImageRejected = "rejected"
)

type Service interface {
	Append(ctx context.Context, userID snowflake.ID, req AppendRequest) (*AppendResponse, error)
	List(ctx context.Context, projectID string) ([]EntryResponse, error)
}

type AppendRequest struct {
	ProjectID  string         `json:"project_id"`
	Phase      string         `json:"phase"`
	Title      string         `json:"title"`
	Body       string         `json:"body"`
	Progress   int            `json:"progress"`
	OccurredAt EntryDate      `json:"occurred_at"`
	Images     []ImageRequest `json:"images"`
}

// EntryDate is the entry timestamp as submitted. Clients send either a
// full RFC 3339 timestamp or a bare YYYY-MM-DD date; a bare date means
// midnight UTC that day.
type EntryDate struct {
	time.Time
}

func (d *EntryDate) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return ErrInvalidDate
	}
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		d.Time = t
		return nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		d.Time = t.UTC()
		return nil
	}
	return ErrInvalidDate
}

type ImageRequest struct {
	DocumentID string `json:"document_id"`
	Caption    string `json:"caption"`
}

type ImageResult struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

type AppendResponse struct {
	EntryID         string        `json:"entry_id"`
	ProjectProgress int           `json:"project_progress"`
	ProjectVersion  int64         `json:"project_version"`
	Images          []ImageResult `json:"images,omitempty"`
}

type EntryResponse struct {
	ID         string          `json:"id"`
	ProjectID  string          `json:"project_id"`
	AuthorID   string          `json:"author_id"`
	Phase      string          `json:"phase"`
	Title      string          `json:"title"`
	Body       string          `json:"body"`
	Progress   int             `json:"progress"`
	OccurredAt time.Time       `json:"occurred_at"`
	CreatedAt  time.Time       `json:"created_at"`
	Images     []ImageResponse `json:"images"`
}

type ImageResponse struct {
	DocumentID string `json:"document_id"`
	Caption    string `json:"caption"`
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateEntry(ctx context.Context, entry TimelineEntry) error
	CreateImage(ctx context.Context, image TimelineImage) error
	ListByProject(ctx context.Context, projectID snowflake.ID) ([]TimelineEntry, error)
	ListImages(ctx context.Context, entryIDs []snowflake.ID) ([]TimelineImage, error)
}

var (
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidProject  = errors.New("invalid_project")
	ErrInvalidPhase    = errors.New("invalid_phase")
	ErrInvalidTitle    = errors.New("invalid_title")
	ErrInvalidProgress = errors.New("invalid_progress")
	ErrInvalidDate     = errors.New("invalid_entry_date")
	ErrProjectClosed   = errors.New("project_closed")
	ErrTooManyImages   = errors.New("too_many_images")
)
