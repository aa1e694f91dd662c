package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/timberline-hq/timberline/internal/project/domain"
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

func (r *repository) CreateProject(ctx context.Context, project domain.Project) error {
	return r.db.WithContext(ctx).Create(&project).Error
}

func (r *repository) GetProject(ctx context.Context, id snowflake.ID) (*domain.Project, error) {
	var project domain.Project
	err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *repository) GetProjectForUpdate(ctx context.Context, id snowflake.ID) (*domain.Project, error) {
	var project domain.Project
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&project, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *repository) UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	tx := r.db.WithContext(ctx).Model(&domain.Project{}).Where("id = ?", id).Updates(fields)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}

func (r *repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Project{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}

func (r *repository) ListProjectsByUser(ctx context.Context, userID snowflake.ID) ([]domain.ProjectListItem, error) {
	var items []domain.ProjectListItem
	err := r.db.WithContext(ctx).Raw(
		`SELECT p.id, p.name, p.slug, p.status, p.progress, pm.role, p.created_at
		 FROM projects p
		 JOIN project_members pm ON pm.project_id = p.id
		 WHERE pm.user_id = ?
		 ORDER BY p.created_at DESC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) AddMember(ctx context.Context, member domain.ProjectMember) error {
	return r.db.WithContext(ctx).Create(&member).Error
}

func (r *repository) RemoveMember(ctx context.Context, projectID, userID snowflake.ID) error {
	tx := r.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(&domain.ProjectMember{})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (r *repository) ListMembers(ctx context.Context, projectID snowflake.ID) ([]domain.ProjectMember, error) {
	var members []domain.ProjectMember
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at asc").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *repository) MemberRole(ctx context.Context, projectID, userID snowflake.ID) (string, error) {
	var member domain.ProjectMember
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.ErrMemberNotFound
	}
	if err != nil {
		return "", err
	}
	return member.Role, nil
}

func (r *repository) IsMember(ctx context.Context, projectID, userID snowflake.ID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CountMembers(ctx context.Context, projectID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.ProjectMember{}).
		Where("project_id = ?", projectID).
		Count(&count).Error
	return count, err
}
