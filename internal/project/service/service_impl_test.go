package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/timberline-hq/timberline/internal/clock"
	"github.com/timberline-hq/timberline/internal/project/domain"
	"github.com/timberline-hq/timberline/internal/project/repository"
)

var testStart = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newProjectService(t *testing.T) (domain.Service, *gorm.DB, *snowflake.Node) {
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

	if err := db.AutoMigrate(&domain.Project{}, &domain.ProjectMember{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	svc := NewService(db, repository.NewRepository(db), node, clock.NewFakeClock(testStart), zap.NewNop())
	return svc, db, node
}

func TestCreateProjectEnrollsOwner(t *testing.T) {
	svc, db, node := newProjectService(t)
	ownerID := node.Generate()

	project, err := svc.Create(context.Background(), ownerID, domain.CreateProjectRequest{
		Name:        "Garden Office",
		Description: "Insulated studio at the back of the plot",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if project.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", project.Status)
	}
	if project.Slug != "garden-office" {
		t.Fatalf("expected slug garden-office, got %s", project.Slug)
	}

	var member domain.ProjectMember
	if err := db.First(&member, "project_id = ?", project.ID).Error; err != nil {
		t.Fatalf("load member: %v", err)
	}
	if member.UserID != ownerID || member.Role != domain.RoleClient {
		t.Fatalf("expected owner enrolled as client, got %+v", member)
	}

	listed, err := svc.ListByUser(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].Role != domain.RoleClient {
		t.Fatalf("expected 1 project as client, got %+v", listed)
	}
}

func TestCreateProjectDisambiguatesSlug(t *testing.T) {
	svc, _, node := newProjectService(t)
	ownerID := node.Generate()

	first, err := svc.Create(context.Background(), ownerID, domain.CreateProjectRequest{Name: "Garden Office"})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := svc.Create(context.Background(), ownerID, domain.CreateProjectRequest{Name: "Garden Office"})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second.Slug == first.Slug {
		t.Fatalf("expected distinct slugs, both %s", first.Slug)
	}
	if second.Slug != fmt.Sprintf("garden-office-%s", second.ID) {
		t.Fatalf("expected id suffix, got %s", second.Slug)
	}
}

func TestCreateProjectRejectsInvertedDates(t *testing.T) {
	svc, _, node := newProjectService(t)

	start := testStart.Add(30 * 24 * time.Hour)
	end := testStart
	_, err := svc.Create(context.Background(), node.Generate(), domain.CreateProjectRequest{
		Name:          "Garden Office",
		StartDate:     &start,
		TargetEndDate: &end,
	})
	if err != domain.ErrInvalidDateRange {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	svc, _, node := newProjectService(t)
	ownerID := node.Generate()

	project, err := svc.Create(context.Background(), ownerID, domain.CreateProjectRequest{Name: "Garden Office"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// pending cannot jump straight to completed.
	if _, err := svc.UpdateStatus(context.Background(), project.ID, domain.StatusCompleted); err != domain.ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	for _, status := range []string{domain.StatusApproved, domain.StatusInProgress, domain.StatusCompleted} {
		updated, err := svc.UpdateStatus(context.Background(), project.ID, status)
		if err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
		if updated.Status != status {
			t.Fatalf("expected %s, got %s", status, updated.Status)
		}
	}

	// Completed is terminal.
	if _, err := svc.UpdateStatus(context.Background(), project.ID, domain.StatusCancelled); err != domain.ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition out of completed, got %v", err)
	}

	// Setting the current status again is a no-op, not a conflict.
	updated, err := svc.UpdateStatus(context.Background(), project.ID, domain.StatusCompleted)
	if err != nil {
		t.Fatalf("idempotent status: %v", err)
	}
	if updated.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}

	cancelled, err := svc.Create(context.Background(), ownerID, domain.CreateProjectRequest{Name: "Pool House"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), cancelled.ID, domain.StatusCancelled); err != nil {
		t.Fatalf("cancel pending project: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), cancelled.ID, domain.StatusApproved); err != domain.ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition out of cancelled, got %v", err)
	}
}

func TestRemoveMemberKeepsOwner(t *testing.T) {
	svc, db, node := newProjectService(t)
	ownerID := node.Generate()

	project, err := svc.Create(context.Background(), ownerID, domain.CreateProjectRequest{Name: "Garden Office"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	projectID, err := snowflake.ParseString(project.ID)
	if err != nil {
		t.Fatalf("parse project id: %v", err)
	}

	contractorID := node.Generate()
	member := domain.ProjectMember{
		ID:        node.Generate(),
		ProjectID: projectID,
		UserID:    contractorID,
		Role:      domain.RoleContractor,
		CreatedAt: testStart,
	}
	if err := db.Create(&member).Error; err != nil {
		t.Fatalf("seed member: %v", err)
	}

	if err := svc.RemoveMember(context.Background(), project.ID, ownerID); err != domain.ErrOwnerImmutable {
		t.Fatalf("expected ErrOwnerImmutable, got %v", err)
	}
	if err := svc.RemoveMember(context.Background(), project.ID, contractorID); err != nil {
		t.Fatalf("remove contractor: %v", err)
	}

	members, err := svc.ListMembers(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 1 || members[0].UserID != ownerID.String() {
		t.Fatalf("expected only the owner left, got %+v", members)
	}
}
