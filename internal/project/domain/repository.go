package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ProjectListItem struct {
	ID        snowflake.ID
	Name      string
	Slug      string
	Status    string
	Progress  int
	Role      string
	CreatedAt time.Time
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateProject(ctx context.Context, project Project) error
	GetProject(ctx context.Context, id snowflake.ID) (*Project, error)
	GetProjectForUpdate(ctx context.Context, id snowflake.ID) (*Project, error)
	UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
	SlugExists(ctx context.Context, slug string) (bool, error)
	ListProjectsByUser(ctx context.Context, userID snowflake.ID) ([]ProjectListItem, error)
	AddMember(ctx context.Context, member ProjectMember) error
	RemoveMember(ctx context.Context, projectID, userID snowflake.ID) error
	ListMembers(ctx context.Context, projectID snowflake.ID) ([]ProjectMember, error)
	MemberRole(ctx context.Context, projectID, userID snowflake.ID) (string, error)
	IsMember(ctx context.Context, projectID, userID snowflake.ID) (bool, error)
	CountMembers(ctx context.Context, projectID snowflake.ID) (int64, error)
}
