// Package domain defines the progress report service.
package domain

import (
	"context"
	"errors"
	"io"
	"time"
)

type Service interface {
	ProjectSummary(ctx context.Context, projectID string, period Period) (*SummaryResponse, error)
	ExportPDF(ctx context.Context, projectID string, period Period) (io.Reader, error)
}

// Period bounds a report. Zero values mean unbounded.
type Period struct {
	From time.Time
	To   time.Time
}

type SummaryResponse struct {
	ProjectID      string         `json:"project_id"`
	ProjectName    string         `json:"project_name"`
	Status         string         `json:"status"`
	Progress       int            `json:"progress"`
	EntryCount     int            `json:"entry_count"`
	PhaseBreakdown map[string]int `json:"phase_breakdown"`
	OpenRequests   int            `json:"open_requests"`
	AwardedBids    int            `json:"awarded_bids"`
	OrdersInFlight int            `json:"orders_in_flight"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

var (
	ErrInvalidProject = errors.New("invalid_project")
	ErrInvalidPeriod  = errors.New("invalid_period")
)
