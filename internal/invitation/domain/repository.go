package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, invitation Invitation) error
	GetByID(ctx context.Context, id snowflake.ID) (*Invitation, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*Invitation, error)
	GetByTokenHashForUpdate(ctx context.Context, tokenHash string) (*Invitation, error)
	UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
	ListByProject(ctx context.Context, projectID snowflake.ID) ([]Invitation, error)
	RevokePending(ctx context.Context, projectID snowflake.ID, email string, at time.Time) error
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}
