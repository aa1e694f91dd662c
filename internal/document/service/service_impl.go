package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/timberline-hq/timberline/internal/clock"
	"github.com/timberline-hq/timberline/internal/config"
	"github.com/timberline-hq/timberline/internal/document/domain"
	projectdomain "github.com/timberline-hq/timberline/internal/project/domain"
	"github.com/timberline-hq/timberline/internal/providers/storage"
)

var photoContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Repo        domain.Repository
	ProjectRepo projectdomain.Repository
	Storage     storage.Provider
	GenID       *snowflake.Node
	Clock       clock.Clock
	Holder      *config.WorkflowConfigHolder
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        domain.Repository
	projectRepo projectdomain.Repository
	storage     storage.Provider
	genID       *snowflake.Node
	clock       clock.Clock
	holder      *config.WorkflowConfigHolder
}

func NewService(p Params) domain.Service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("document.service"),
		repo:        p.Repo,
		projectRepo: p.ProjectRepo,
		storage:     p.Storage,
		genID:       p.GenID,
		clock:       p.Clock,
		holder:      p.Holder,
	}
}

// BatchUpload stores each file independently and reports a per-item
// outcome. One bad file never fails the batch.
func (s *service) BatchUpload(ctx context.Context, userID snowflake.ID, projectID string, kind string, files []domain.FileUpload) ([]domain.UploadResult, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if kind != domain.KindDocument && kind != domain.KindPhoto {
		return nil, domain.ErrInvalidKind
	}
	if len(files) == 0 {
		return nil, domain.ErrNoFiles
	}

	workflow := s.holder.Current()
	if workflow.MaxImagesPerEntry > 0 && len(files) > workflow.MaxImagesPerEntry {
		return nil, domain.ErrTooManyFiles
	}

	pid, err := parseProjectID(projectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.projectRepo.GetProject(ctx, pid); err != nil {
		return nil, domain.ErrInvalidProject
	}

	results := make([]domain.UploadResult, 0, len(files))
	for _, file := range files {
		results = append(results, s.storeOne(ctx, userID, pid, kind, file, int64(workflow.MaxUploadSizeBytes)))
	}
	return results, nil
}

func (s *service) storeOne(ctx context.Context, userID, projectID snowflake.ID, kind string, file domain.FileUpload, maxSize int64) domain.UploadResult {
	fileName := filepath.Base(strings.TrimSpace(file.FileName))
	if fileName == "" || fileName == "." || fileName == "/" {
		return rejected(file.FileName, "file name is required")
	}
	if maxSize > 0 && file.Size > maxSize {
		return rejected(fileName, fmt.Sprintf("file exceeds %d bytes", maxSize))
	}
	contentType := strings.TrimSpace(file.ContentType)
	if kind == domain.KindPhoto && !photoContentTypes[contentType] {
		return rejected(fileName, "unsupported image type")
	}

	documentID := s.genID.Generate()
	storagePath := fmt.Sprintf("%s/%s/%s", projectID.String(), documentID.String(), fileName)

	hasher := sha256.New()
	reader := io.TeeReader(file.Reader, hasher)
	if maxSize > 0 {
		reader = io.LimitReader(reader, maxSize+1)
	}

	written, err := s.storage.Save(ctx, storagePath, reader)
	if err != nil {
		s.log.Warn("upload failed", zap.String("file_name", fileName), zap.Error(err))
		return rejected(fileName, "storage write failed")
	}
	if maxSize > 0 && written > maxSize {
		_ = s.storage.Delete(ctx, storagePath)
		return rejected(fileName, fmt.Sprintf("file exceeds %d bytes", maxSize))
	}

	document := domain.Document{
		ID:          documentID,
		ProjectID:   projectID,
		UploaderID:  userID,
		Kind:        kind,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   written,
		StoragePath: storagePath,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		CreatedAt:   s.clock.Now(),
	}
	if err := s.repo.Create(ctx, document); err != nil {
		_ = s.storage.Delete(ctx, storagePath)
		s.log.Warn("document insert failed", zap.String("file_name", fileName), zap.Error(err))
		return rejected(fileName, "could not record document")
	}

	return domain.UploadResult{
		FileName:   fileName,
		Status:     domain.UploadAccepted,
		DocumentID: documentID.String(),
	}
}

func (s *service) Get(ctx context.Context, documentID string) (*domain.DocumentResponse, error) {
	id, err := parseDocumentID(documentID)
	if err != nil {
		return nil, err
	}
	document, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return toResponse(document), nil
}

func (s *service) Open(ctx context.Context, documentID string) (*domain.DocumentResponse, io.ReadCloser, error) {
	id, err := parseDocumentID(documentID)
	if err != nil {
		return nil, nil, err
	}
	document, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.storage.Open(ctx, document.StoragePath)
	if err != nil {
		return nil, nil, domain.ErrNotFound
	}
	return toResponse(document), rc, nil
}

func (s *service) ListByProject(ctx context.Context, projectID string, kind string) ([]domain.DocumentResponse, error) {
	pid, err := parseProjectID(projectID)
	if err != nil {
		return nil, err
	}
	kind = strings.TrimSpace(kind)
	if kind != "" && kind != domain.KindDocument && kind != domain.KindPhoto {
		return nil, domain.ErrInvalidKind
	}

	documents, err := s.repo.ListByProject(ctx, pid, kind)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.DocumentResponse, 0, len(documents))
	for i := range documents {
		resp = append(resp, *toResponse(&documents[i]))
	}
	return resp, nil
}

func (s *service) Delete(ctx context.Context, documentID string) error {
	id, err := parseDocumentID(documentID)
	if err != nil {
		return err
	}
	document, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, document.StoragePath); err != nil {
		s.log.Warn("orphaned blob after delete",
			zap.String("document_id", id.String()),
			zap.Error(err),
		)
	}
	return nil
}

func rejected(fileName, reason string) domain.UploadResult {
	return domain.UploadResult{
		FileName: fileName,
		Status:   domain.UploadRejected,
		Reason:   reason,
	}
}

func toResponse(document *domain.Document) *domain.DocumentResponse {
	return &domain.DocumentResponse{
		ID:          document.ID.String(),
		ProjectID:   document.ProjectID.String(),
		UploaderID:  document.UploaderID.String(),
		Kind:        document.Kind,
		FileName:    document.FileName,
		ContentType: document.ContentType,
		SizeBytes:   document.SizeBytes,
		Checksum:    document.Checksum,
		CreatedAt:   document.CreatedAt,
	}
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

func parseDocumentID(raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, domain.ErrNotFound
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, domain.ErrNotFound
	}
	return id, nil
}
