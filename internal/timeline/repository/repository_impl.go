package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/timberline-hq/timberline/internal/timeline/domain"
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

func (r *repository) CreateEntry(ctx context.Context, entry domain.TimelineEntry) error {
	return r.db.WithContext(ctx).Create(&entry).Error
}

func (r *repository) CreateImage(ctx context.Context, image domain.TimelineImage) error {
	return r.db.WithContext(ctx).Create(&image).Error
}

func (r *repository) ListByProject(ctx context.Context, projectID snowflake.ID) ([]domain.TimelineEntry, error) {
	var entries []domain.TimelineEntry
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("occurred_at desc, id desc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListImages(ctx context.Context, entryIDs []snowflake.ID) ([]domain.TimelineImage, error) {
	if len(entryIDs) == 0 {
		return nil, nil
	}
	var images []domain.TimelineImage
	err := r.db.WithContext(ctx).
		Where("entry_id IN ?", entryIDs).
		Order("created_at asc").
		Find(&images).Error
	if err != nil {
		return nil, err
	}
	return images, nil
}
