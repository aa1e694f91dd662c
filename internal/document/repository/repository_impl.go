package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/timberline-hq/timberline/internal/document/domain"
	"gorm.io/gorm"
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

func (r *repository) Create(ctx context.Context, document domain.Document) error {
	return r.db.WithContext(ctx).Create(&document).Error
}

func (r *repository) Get(ctx context.Context, id snowflake.ID) (*domain.Document, error) {
	var document domain.Document
	err := r.db.WithContext(ctx).First(&document, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &document, nil
}

func (r *repository) ListByProject(ctx context.Context, projectID snowflake.ID, kind string) ([]domain.Document, error) {
	stmt := r.db.WithContext(ctx).Where("project_id = ?", projectID)
	if kind != "" {
		stmt = stmt.Where("kind = ?", kind)
	}

	var documents []domain.Document
	if err := stmt.Order("created_at desc").Find(&documents).Error; err != nil {
		return nil, err
	}
	return documents, nil
}

func (r *repository) Delete(ctx context.Context, id snowflake.ID) error {
	tx := r.db.WithContext(ctx).Delete(&domain.Document{}, "id = ?", id)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
