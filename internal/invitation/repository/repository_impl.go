package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/timberline-hq/timberline/internal/invitation/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, invitation domain.Invitation) error {
	return r.db.WithContext(ctx).Create(&invitation).Error
}

func (r *repository) GetByID(ctx context.Context, id snowflake.ID) (*domain.Invitation, error) {
	var invitation domain.Invitation
	err := r.db.WithContext(ctx).First(&invitation, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}

func (r *repository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error) {
	var invitation domain.Invitation
	err := r.db.WithContext(ctx).First(&invitation, "token_hash = ?", tokenHash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}

func (r *repository) GetByTokenHashForUpdate(ctx context.Context, tokenHash string) (*domain.Invitation, error) {
	var invitation domain.Invitation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&invitation, "token_hash = ?", tokenHash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}

func (r *repository) UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	tx := r.db.WithContext(ctx).Model(&domain.Invitation{}).Where("id = ?", id).Updates(fields)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repository) ListByProject(ctx context.Context, projectID snowflake.ID) ([]domain.Invitation, error) {
	var invitations []domain.Invitation
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at desc").
		Find(&invitations).Error
	if err != nil {
		return nil, err
	}
	return invitations, nil
}

func (r *repository) RevokePending(ctx context.Context, projectID snowflake.ID, email string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Invitation{}).
		Where("project_id = ? AND email = ? AND status = ?", projectID, email, domain.StatusPending).
		Updates(map[string]any{
			"status":       domain.StatusRevoked,
			"processed_at": at,
			"updated_at":   at,
		}).Error
}

func (r *repository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&domain.Invitation{}).
		Where("status = ? AND expires_at <= ?", domain.StatusPending, now).
		Updates(map[string]any{
			"status":       domain.StatusExpired,
			"processed_at": now,
			"updated_at":   now,
		})
	return tx.RowsAffected, tx.Error
}
