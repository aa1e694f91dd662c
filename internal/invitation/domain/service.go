package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Resolve outcomes, in evaluation order. An unknown token is not found;
// a known token past its deadline is expired even when a terminal
// status was never written; anything terminal is already processed.
const (
	ResolutionPending          = "pending"
	ResolutionExpired          = "expired"
	ResolutionAlreadyProcessed = "already_processed"
)

type Service interface {
	Issue(ctx context.Context, userID snowflake.ID, req IssueRequest) (*IssueResponse, error)
	Resolve(ctx context.Context, rawToken string) (*ResolveResponse, error)
	Accept(ctx context.Context, userID snowflake.ID, userEmail string, rawToken string) (*AcceptResponse, error)
	Decline(ctx context.Context, userEmail string, rawToken string) error
	Revoke(ctx context.Context, invitationID string) error
	ListByProject(ctx context.Context, projectID string) ([]InvitationResponse, error)
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

// Notifier delivers the invite link out of band. Implementations must
// not block the issuing transaction.
type Notifier interface {
	InvitationIssued(ctx context.Context, email string, projectName string, role string, rawToken string, expiresAt time.Time)
}

type IssueRequest struct {
	ProjectID string `json:"project_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

type IssueResponse struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	RawToken  string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ResolveResponse struct {
	Resolution  string    `json:"resolution"`
	ProjectID   string    `json:"project_id,omitempty"`
	ProjectName string    `json:"project_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	Role        string    `json:"role,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

type AcceptResponse struct {
	ProjectID string `json:"project_id"`
	Role      string `json:"role"`
}

type InvitationResponse struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	InvitedBy   string     `json:"invited_by"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

var (
	ErrNotFound         = errors.New("invitation_not_found")
	ErrExpired          = errors.New("invitation_expired")
	ErrAlreadyProcessed = errors.New("invitation_already_processed")
	ErrEmailMismatch    = errors.New("invitation_email_mismatch")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrInvalidRole      = errors.New("invalid_role")
	ErrInvalidProject   = errors.New("invalid_project")
	ErrInvalidUser      = errors.New("invalid_user")
	ErrProjectCancelled  = errors.New("project_cancelled")
	ErrTeamFull         = errors.New("team_full")
	ErrAlreadyMember    = errors.New("already_member")
)
