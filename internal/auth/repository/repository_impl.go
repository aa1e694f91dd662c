package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/timberline-hq/timberline/internal/auth/domain"
)

type repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateUser(ctx context.Context, user domain.User) error {
	return r.db.WithContext(ctx).Create(&user).Error
}

func (r *repository) GetUser(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) UpdatePassword(ctx context.Context, id snowflake.ID, hash string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"password_hash":         hash,
			"last_password_changed": now,
			"updated_at":            now,
		}).Error
}

func (r *repository) CreateSession(ctx context.Context, session domain.Session) error {
	return r.db.WithContext(ctx).Create(&session).Error
}

func (r *repository) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	var session domain.Session
	if err := r.db.WithContext(ctx).First(&session, "token_hash = ?", tokenHash).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repository) RevokeSession(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", time.Now().UTC()).Error
}
