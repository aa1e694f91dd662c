package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/timberline-hq/timberline/internal/clock"
	"github.com/timberline-hq/timberline/internal/config"
	"github.com/timberline-hq/timberline/internal/document/domain"
	documentrepo "github.com/timberline-hq/timberline/internal/document/repository"
	projectdomain "github.com/timberline-hq/timberline/internal/project/domain"
	projectrepo "github.com/timberline-hq/timberline/internal/project/repository"
	"github.com/timberline-hq/timberline/internal/providers/storage"
)

var testStart = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type documentHarness struct {
	svc  domain.Service
	db   *gorm.DB
	node *snowflake.Node
}

func newDocumentHarness(t *testing.T, workflow config.WorkflowConfig) *documentHarness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	if err := db.AutoMigrate(&projectdomain.Project{}, &domain.Document{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	provider, err := storage.NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}

	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		Repo:        documentrepo.NewRepository(db),
		ProjectRepo: projectrepo.NewRepository(db),
		Storage:     provider,
		GenID:       node,
		Clock:       clock.NewFakeClock(testStart),
		Holder:      config.NewStaticWorkflowConfigHolder(workflow),
	})

	return &documentHarness{svc: svc, db: db, node: node}
}

func (h *documentHarness) seedProject(t *testing.T) (snowflake.ID, snowflake.ID) {
	t.Helper()

	ownerID := h.node.Generate()
	project := projectdomain.Project{
		ID:      h.node.Generate(),
		OwnerID: ownerID,
		Name:    "Boathouse",
		Slug:    fmt.Sprintf("boathouse-%s", h.node.Generate()),
		Status:  projectdomain.StatusInProgress,
	}
	if err := h.db.Create(&project).Error; err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return project.ID, ownerID
}

func TestBatchUploadMixedOutcomes(t *testing.T) {
	workflow := config.DefaultWorkflowConfig()
	workflow.MaxUploadSizeBytes = 64
	h := newDocumentHarness(t, workflow)
	projectID, ownerID := h.seedProject(t)

	payload := []byte("jpeg bytes go here")
	results, err := h.svc.BatchUpload(context.Background(), ownerID, projectID.String(), domain.KindPhoto, []domain.FileUpload{
		{FileName: "site.jpg", ContentType: "image/jpeg", Size: int64(len(payload)), Reader: bytes.NewReader(payload)},
		{FileName: "plans.pdf", ContentType: "application/pdf", Size: 10, Reader: strings.NewReader("not image")},
		{FileName: "huge.png", ContentType: "image/png", Size: 1 << 20, Reader: strings.NewReader("x")},
		{FileName: "", ContentType: "image/png", Size: 4, Reader: strings.NewReader("tiny")},
	})
	if err != nil {
		t.Fatalf("batch upload: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if results[0].Status != domain.UploadAccepted || results[0].DocumentID == "" {
		t.Fatalf("expected first file accepted, got %+v", results[0])
	}
	for i, result := range results[1:] {
		if result.Status != domain.UploadRejected || result.Reason == "" {
			t.Fatalf("expected file %d rejected with reason, got %+v", i+1, result)
		}
	}

	sum := sha256.Sum256(payload)
	doc, err := h.svc.Get(context.Background(), results[0].DocumentID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Checksum != hex.EncodeToString(sum[:]) {
		t.Fatalf("checksum mismatch: %s", doc.Checksum)
	}
	if doc.SizeBytes != int64(len(payload)) {
		t.Fatalf("expected size %d, got %d", len(payload), doc.SizeBytes)
	}
}

func TestOpenRoundTripsBytes(t *testing.T) {
	h := newDocumentHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)

	payload := []byte("structural calculations")
	results, err := h.svc.BatchUpload(context.Background(), ownerID, projectID.String(), domain.KindDocument, []domain.FileUpload{
		{FileName: "calcs.pdf", ContentType: "application/pdf", Size: int64(len(payload)), Reader: bytes.NewReader(payload)},
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if results[0].Status != domain.UploadAccepted {
		t.Fatalf("expected accepted, got %+v", results[0])
	}

	doc, rc, err := h.svc.Open(context.Background(), results[0].DocumentID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected %q, got %q", payload, got)
	}
	if doc.FileName != "calcs.pdf" {
		t.Fatalf("unexpected file name %s", doc.FileName)
	}
}

func TestDeleteRemovesBlobAndRow(t *testing.T) {
	h := newDocumentHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)

	results, err := h.svc.BatchUpload(context.Background(), ownerID, projectID.String(), domain.KindDocument, []domain.FileUpload{
		{FileName: "permit.pdf", ContentType: "application/pdf", Size: 6, Reader: strings.NewReader("permit")},
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	docID := results[0].DocumentID

	if err := h.svc.Delete(context.Background(), docID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := h.svc.Get(context.Background(), docID); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, _, err := h.svc.Open(context.Background(), docID); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound opening deleted doc, got %v", err)
	}
}

func TestListFiltersByKind(t *testing.T) {
	h := newDocumentHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)

	_, err := h.svc.BatchUpload(context.Background(), ownerID, projectID.String(), domain.KindPhoto, []domain.FileUpload{
		{FileName: "a.jpg", ContentType: "image/jpeg", Size: 1, Reader: strings.NewReader("a")},
	})
	if err != nil {
		t.Fatalf("upload photo: %v", err)
	}
	_, err = h.svc.BatchUpload(context.Background(), ownerID, projectID.String(), domain.KindDocument, []domain.FileUpload{
		{FileName: "b.pdf", ContentType: "application/pdf", Size: 1, Reader: strings.NewReader("b")},
	})
	if err != nil {
		t.Fatalf("upload document: %v", err)
	}

	photos, err := h.svc.ListByProject(context.Background(), projectID.String(), domain.KindPhoto)
	if err != nil {
		t.Fatalf("list photos: %v", err)
	}
	if len(photos) != 1 || photos[0].Kind != domain.KindPhoto {
		t.Fatalf("expected 1 photo, got %+v", photos)
	}

	all, err := h.svc.ListByProject(context.Background(), projectID.String(), "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(all))
	}

	if _, err := h.svc.ListByProject(context.Background(), projectID.String(), "spreadsheet"); err != domain.ErrInvalidKind {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}
