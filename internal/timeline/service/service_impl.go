package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/timberline-hq/timberline/internal/clock"
	"github.com/timberline-hq/timberline/internal/config"
	documentdomain "github.com/timberline-hq/timberline/internal/document/domain"
	"github.com/timberline-hq/timberline/internal/observability/metrics"
	projectdomain "github.com/timberline-hq/timberline/internal/project/domain"
	"github.com/timberline-hq/timberline/internal/timeline/domain"
)

// Entries may be backdated but never dated in the future beyond a small
// clock-skew allowance.
const maxFutureSkew = 24 * time.Hour

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Repo         domain.Repository
	ProjectRepo  projectdomain.Repository
	DocumentRepo documentdomain.Repository
	GenID        *snowflake.Node
	Clock        clock.Clock
	Holder       *config.WorkflowConfigHolder
	Metrics      *metrics.Metrics `optional:"true"`
}

type service struct {
	db           *gorm.DB
	log          *zap.Logger
	repo         domain.Repository
	projectRepo  projectdomain.Repository
	documentRepo documentdomain.Repository
	genID        *snowflake.Node
	clock        clock.Clock
	holder       *config.WorkflowConfigHolder
	metrics      *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &service{
		db:           p.DB,
		log:          p.Log.Named("timeline.service"),
		repo:         p.Repo,
		projectRepo:  p.ProjectRepo,
		documentRepo: p.DocumentRepo,
		genID:        p.GenID,
		clock:        p.Clock,
		holder:       p.Holder,
		metrics:      p.Metrics,
	}
}

// Append writes the entry, its image links, and the project progress
// stamp in one transaction. The project row is locked so two concurrent
// appends serialize on the version bump.
func (s *service) Append(ctx context.Context, userID snowflake.ID, req domain.AppendRequest) (*domain.AppendResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	projectID, err := parseProjectID(req.ProjectID)
	if err != nil {
		return nil, err
	}

	phase := strings.TrimSpace(req.Phase)
	if !domain.ValidPhase(phase) {
		return nil, domain.ErrInvalidPhase
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, domain.ErrInvalidTitle
	}

	if req.Progress < 0 || req.Progress > 100 {
		return nil, domain.ErrInvalidProgress
	}

	now := s.clock.Now()
	if req.OccurredAt.IsZero() || req.OccurredAt.After(now.Add(maxFutureSkew)) {
		return nil, domain.ErrInvalidDate
	}

	workflow := s.holder.Current()
	if workflow.MaxImagesPerEntry > 0 && len(req.Images) > workflow.MaxImagesPerEntry {
		return nil, domain.ErrTooManyImages
	}

	entryID := s.genID.Generate()
	var resp *domain.AppendResponse

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		projectRepo := s.projectRepo.WithTx(tx)
		documentRepo := s.documentRepo.WithTx(tx)

		project, err := projectRepo.GetProjectForUpdate(ctx, projectID)
		if err != nil {
			return err
		}
		if project.Status == projectdomain.StatusCompleted || project.Status == projectdomain.StatusCancelled {
			return domain.ErrProjectClosed
		}

		entry := domain.TimelineEntry{
			ID:         entryID,
			ProjectID:  projectID,
			AuthorID:   userID,
			Phase:      phase,
			Title:      title,
			Body:       strings.TrimSpace(req.Body),
			Progress:   req.Progress,
			OccurredAt: req.OccurredAt.UTC(),
			CreatedAt:  now,
		}
		if err := repo.CreateEntry(ctx, entry); err != nil {
			return err
		}

		imageResults := make([]domain.ImageResult, 0, len(req.Images))
		for _, image := range req.Images {
			imageResults = append(imageResults, s.attachImage(ctx, repo, documentRepo, projectID, entryID, image, now))
		}

		newVersion := project.Version + 1
		if err := projectRepo.UpdateFields(ctx, projectID, map[string]any{
			"progress":   req.Progress,
			"version":    newVersion,
			"updated_at": now,
		}); err != nil {
			return err
		}

		resp = &domain.AppendResponse{
			EntryID:         entryID.String(),
			ProjectProgress: req.Progress,
			ProjectVersion:  newVersion,
			Images:          imageResults,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordTimelineAppend(ctx, phase)
	}
	s.log.Info("timeline entry appended",
		zap.String("project_id", projectID.String()),
		zap.String("entry_id", entryID.String()),
		zap.String("phase", phase),
		zap.Int("progress", req.Progress),
	)
	return resp, nil
}

func (s *service) attachImage(ctx context.Context, repo domain.Repository, documentRepo documentdomain.Repository, projectID, entryID snowflake.ID, image domain.ImageRequest, now time.Time) domain.ImageResult {
	raw := strings.TrimSpace(image.DocumentID)
	documentID, err := snowflake.ParseString(raw)
	if err != nil || documentID == 0 {
		return domain.ImageResult{DocumentID: raw, Status: domain.ImageRejected, Reason: "invalid document id"}
	}

	document, err := documentRepo.Get(ctx, documentID)
	if err != nil {
		return domain.ImageResult{DocumentID: raw, Status: domain.ImageRejected, Reason: "document not found"}
	}
	if document.ProjectID != projectID {
		return domain.ImageResult{DocumentID: raw, Status: domain.ImageRejected, Reason: "document belongs to another project"}
	}
	if document.Kind != documentdomain.KindPhoto {
		return domain.ImageResult{DocumentID: raw, Status: domain.ImageRejected, Reason: "document is not a photo"}
	}

	err = repo.CreateImage(ctx, domain.TimelineImage{
		ID:         s.genID.Generate(),
		EntryID:    entryID,
		DocumentID: documentID,
		Caption:    strings.TrimSpace(image.Caption),
		CreatedAt:  now,
	})
	if err != nil {
		return domain.ImageResult{DocumentID: raw, Status: domain.ImageRejected, Reason: "could not attach"}
	}
	return domain.ImageResult{DocumentID: raw, Status: domain.ImageAttached}
}

func (s *service) List(ctx context.Context, projectID string) ([]domain.EntryResponse, error) {
	id, err := parseProjectID(projectID)
	if err != nil {
		return nil, err
	}

	entries, err := s.repo.ListByProject(ctx, id)
	if err != nil {
		return nil, err
	}

	entryIDs := make([]snowflake.ID, 0, len(entries))
	for _, entry := range entries {
		entryIDs = append(entryIDs, entry.ID)
	}
	images, err := s.repo.ListImages(ctx, entryIDs)
	if err != nil {
		return nil, err
	}

	imagesByEntry := make(map[snowflake.ID][]domain.ImageResponse, len(entries))
	for _, image := range images {
		imagesByEntry[image.EntryID] = append(imagesByEntry[image.EntryID], domain.ImageResponse{
			DocumentID: image.DocumentID.String(),
			Caption:    image.Caption,
		})
	}

	resp := make([]domain.EntryResponse, 0, len(entries))
	for _, entry := range entries {
		entryImages := imagesByEntry[entry.ID]
		if entryImages == nil {
			entryImages = []domain.ImageResponse{}
		}
		resp = append(resp, domain.EntryResponse{
			ID:         entry.ID.String(),
			ProjectID:  entry.ProjectID.String(),
			AuthorID:   entry.AuthorID.String(),
			Phase:      entry.Phase,
			Title:      entry.Title,
			Body:       entry.Body,
			Progress:   entry.Progress,
			OccurredAt: entry.OccurredAt,
			CreatedAt:  entry.CreatedAt,
			Images:     entryImages,
		})
	}
	return resp, nil
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
