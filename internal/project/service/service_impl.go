package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/timberline-hq/timberline/internal/clock"
	"github.com/timberline-hq/timberline/internal/project/domain"
)

type service struct {
	db    *gorm.DB
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
	log   *zap.Logger
}

func NewService(db *gorm.DB, repo domain.Repository, genID *snowflake.Node, clk clock.Clock, log *zap.Logger) domain.Service {
	return &service{
		db:    db,
		repo:  repo,
		genID: genID,
		clock: clk,
		log:   log.Named("project.service"),
	}
}

func (s *service) Create(ctx context.Context, userID snowflake.ID, req domain.CreateProjectRequest) (*domain.ProjectResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	if req.StartDate != nil && req.TargetEndDate != nil && req.TargetEndDate.Before(*req.StartDate) {
		return nil, domain.ErrInvalidDateRange
	}

	now := s.clock.Now()
	projectID := s.genID.Generate()

	projectSlug := slug.Make(name)
	exists, err := s.repo.SlugExists(ctx, projectSlug)
	if err != nil {
		return nil, err
	}
	if exists {
		projectSlug = fmt.Sprintf("%s-%s", projectSlug, projectID.String())
	}

	project := domain.Project{
		ID:            projectID,
		OwnerID:       userID,
		Name:          name,
		Slug:          projectSlug,
		Description:   strings.TrimSpace(req.Description),
		Address:       strings.TrimSpace(req.Address),
		Status:        domain.StatusPending,
		StartDate:     req.StartDate,
		TargetEndDate: req.TargetEndDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateProject(ctx, project); err != nil {
			return err
		}

		member := domain.ProjectMember{
			ID:        s.genID.Generate(),
			ProjectID: projectID,
			UserID:    userID,
			Role:      domain.RoleClient,
			CreatedAt: now,
		}
		return repo.AddMember(ctx, member)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("project created",
		zap.String("project_id", projectID.String()),
		zap.String("owner_id", userID.String()),
	)

	return toResponse(&project), nil
}

func (s *service) GetByID(ctx context.Context, id string) (*domain.ProjectResponse, error) {
	projectID, err := parseProjectID(id)
	if err != nil {
		return nil, err
	}

	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return toResponse(project), nil
}

func (s *service) ListByUser(ctx context.Context, userID snowflake.ID) ([]domain.ProjectListResponseItem, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	items, err := s.repo.ListProjectsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.ProjectListResponseItem, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.ProjectListResponseItem{
			ID:        item.ID.String(),
			Name:      item.Name,
			Slug:      item.Slug,
			Status:    item.Status,
			Progress:  item.Progress,
			Role:      item.Role,
			CreatedAt: item.CreatedAt,
		})
	}
	return resp, nil
}

func (s *service) Update(ctx context.Context, projectID string, req domain.UpdateProjectRequest) (*domain.ProjectResponse, error) {
	id, err := parseProjectID(projectID)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		fields["name"] = name
	}
	if req.Description != nil {
		fields["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Address != nil {
		fields["address"] = strings.TrimSpace(*req.Address)
	}
	if req.StartDate != nil {
		fields["start_date"] = *req.StartDate
	}
	if req.TargetEndDate != nil {
		fields["target_end_date"] = *req.TargetEndDate
	}

	if len(fields) > 0 {
		fields["updated_at"] = s.clock.Now()
		if err := s.repo.UpdateFields(ctx, id, fields); err != nil {
			return nil, err
		}
	}

	project, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	return toResponse(project), nil
}

func (s *service) UpdateStatus(ctx context.Context, projectID string, status string) (*domain.ProjectResponse, error) {
	id, err := parseProjectID(projectID)
	if err != nil {
		return nil, err
	}

	status = strings.TrimSpace(status)
	switch status {
	case domain.StatusPending, domain.StatusApproved, domain.StatusInProgress, domain.StatusCompleted, domain.StatusCancelled:
	default:
		return nil, domain.ErrInvalidStatus
	}

	var project *domain.Project
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.GetProjectForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == status {
			project = current
			return nil
		}
		if !domain.CanTransition(current.Status, status) {
			return domain.ErrInvalidTransition
		}

		now := s.clock.Now()
		if err := repo.UpdateFields(ctx, id, map[string]any{
			"status":     status,
			"updated_at": now,
		}); err != nil {
			return err
		}
		current.Status = status
		current.UpdatedAt = now
		project = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("project status changed",
		zap.String("project_id", id.String()),
		zap.String("status", status),
	)
	return toResponse(project), nil
}

func (s *service) ListMembers(ctx context.Context, projectID string) ([]domain.MemberResponse, error) {
	id, err := parseProjectID(projectID)
	if err != nil {
		return nil, err
	}

	members, err := s.repo.ListMembers(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.MemberResponse, 0, len(members))
	for _, member := range members {
		resp = append(resp, domain.MemberResponse{
			UserID:   member.UserID.String(),
			Role:     member.Role,
			JoinedAt: member.CreatedAt,
		})
	}
	return resp, nil
}

func (s *service) RemoveMember(ctx context.Context, projectID string, userID snowflake.ID) error {
	id, err := parseProjectID(projectID)
	if err != nil {
		return err
	}
	if userID == 0 {
		return domain.ErrInvalidUser
	}

	project, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if project.OwnerID == userID {
		return domain.ErrOwnerImmutable
	}

	return s.repo.RemoveMember(ctx, id, userID)
}

func parseProjectID(raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, domain.ErrInvalidProject
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidProject
	}
	return id, nil
}

func toResponse(project *domain.Project) *domain.ProjectResponse {
	return &domain.ProjectResponse{
		ID:            project.ID.String(),
		OwnerID:       project.OwnerID.String(),
		Name:          project.Name,
		Slug:          project.Slug,
		Description:   project.Description,
		Address:       project.Address,
		Status:        project.Status,
		Progress:      project.Progress,
		StartDate:     project.StartDate,
		TargetEndDate: project.TargetEndDate,
		CreatedAt:     project.CreatedAt,
		UpdatedAt:     project.UpdatedAt,
	}
}
