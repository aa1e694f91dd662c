package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateProjectRequest) (*ProjectResponse, error)
	GetByID(ctx context.Context, id string) (*ProjectResponse, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]ProjectListResponseItem, error)
	Update(ctx context.Context, projectID string, req UpdateProjectRequest) (*ProjectResponse, error)
	UpdateStatus(ctx context.Context, projectID string, status string) (*ProjectResponse, error)
	ListMembers(ctx context.Context, projectID string) ([]MemberResponse, error)
	RemoveMember(ctx context.Context, projectID string, userID snowflake.ID) error
}

type CreateProjectRequest struct {
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Address       string     `json:"address"`
	StartDate     *time.Time `json:"start_date"`
	TargetEndDate *time.Time `json:"target_end_date"`
}

type UpdateProjectRequest struct {
	Name          *string    `json:"name"`
	Description   *string    `json:"description"`
	Address       *string    `json:"address"`
	StartDate     *time.Time `json:"start_date"`
	TargetEndDate *time.Time `json:"target_end_date"`
}

type ProjectResponse struct {
	ID            string     `json:"id"`
	OwnerID       string     `json:"owner_id"`
	Name          string     `json:"name"`
	Slug          string     `json:"slug"`
	Description   string     `json:"description"`
	Address       string     `json:"address"`
	Status        string     `json:"status"`
	Progress      int        `json:"progress"`
	StartDate     *time.Time `json:"start_date"`
	TargetEndDate *time.Time `json:"target_end_date"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type ProjectListResponseItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type MemberResponse struct {
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

var (
	ErrInvalidUser       = errors.New("invalid_user")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidProject    = errors.New("invalid_project")
	ErrProjectNotFound   = errors.New("project_not_found")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidTransition = errors.New("invalid_status_transition")
	ErrInvalidDateRange  = errors.New("invalid_date_range")
	ErrMemberNotFound    = errors.New("member_not_found")
	ErrOwnerImmutable    = errors.New("owner_cannot_be_removed")
)
