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
	"github.com/timberline-hq/timberline/internal/config"
	"github.com/timberline-hq/timberline/internal/invitation/domain"
	invitationrepo "github.com/timberline-hq/timberline/internal/invitation/repository"
	projectdomain "github.com/timberline-hq/timberline/internal/project/domain"
	projectrepo "github.com/timberline-hq/timberline/internal/project/repository"
)

var testStart = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type invitationHarness struct {
	svc   domain.Service
	db    *gorm.DB
	clock *clock.FakeClock
	node  *snowflake.Node
}

func newInvitationHarness(t *testing.T, workflow config.WorkflowConfig) *invitationHarness {
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

	if err := db.AutoMigrate(
		&projectdomain.Project{},
		&projectdomain.ProjectMember{},
		&domain.Invitation{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fake := clock.NewFakeClock(testStart)

	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		Repo:        invitationrepo.NewRepository(db),
		ProjectRepo: projectrepo.NewRepository(db),
		GenID:       node,
		Clock:       fake,
		Holder:      config.NewStaticWorkflowConfigHolder(workflow),
	})

	return &invitationHarness{svc: svc, db: db, clock: fake, node: node}
}

// seedProject creates an active project with its owner as sole member and
// returns the project and owner IDs.
func (h *invitationHarness) seedProject(t *testing.T) (snowflake.ID, snowflake.ID) {
	t.Helper()

	ownerID := h.node.Generate()
	project := projectdomain.Project{
		ID:      h.node.Generate(),
		OwnerID: ownerID,
		Name:    "Lakeside Cabin",
		Slug:    fmt.Sprintf("lakeside-cabin-%s", h.node.Generate()),
		Status:  projectdomain.StatusInProgress,
	}
	if err := h.db.Create(&project).Error; err != nil {
		t.Fatalf("seed project: %v", err)
	}
	member := projectdomain.ProjectMember{
		ID:        h.node.Generate(),
		ProjectID: project.ID,
		UserID:    ownerID,
		Role:      projectdomain.RoleClient,
		CreatedAt: h.clock.Now(),
	}
	if err := h.db.Create(&member).Error; err != nil {
		t.Fatalf("seed owner membership: %v", err)
	}
	return project.ID, ownerID
}

func (h *invitationHarness) issue(t *testing.T, projectID, inviterID snowflake.ID, email, role string) *domain.IssueResponse {
	t.Helper()
	resp, err := h.svc.Issue(context.Background(), inviterID, domain.IssueRequest{
		ProjectID: projectID.String(),
		Email:     email,
		Role:      role,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return resp
}

func TestIssueSupersedesPendingInvite(t *testing.T) {
	h := newInvitationHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)

	first := h.issue(t, projectID, ownerID, "Mason@Example.com", domain.RoleContractor)
	if first.Email != "mason@example.com" {
		t.Fatalf("expected normalized email, got %q", first.Email)
	}
	wantExpiry := testStart.Add(7 * 24 * time.Hour)
	if !first.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected expiry %v, got %v", wantExpiry, first.ExpiresAt)
	}

	second := h.issue(t, projectID, ownerID, "mason@example.com", domain.RoleInspector)

	resolved, err := h.svc.Resolve(context.Background(), first.RawToken)
	if err != nil {
		t.Fatalf("resolve superseded: %v", err)
	}
	if resolved.Resolution != domain.ResolutionAlreadyProcessed {
		t.Fatalf("expected superseded invite to be already_processed, got %s", resolved.Resolution)
	}

	resolved, err = h.svc.Resolve(context.Background(), second.RawToken)
	if err != nil {
		t.Fatalf("resolve fresh: %v", err)
	}
	if resolved.Resolution != domain.ResolutionPending {
		t.Fatalf("expected fresh invite pending, got %s", resolved.Resolution)
	}
	if resolved.Role != domain.RoleInspector {
		t.Fatalf("expected inspector role, got %s", resolved.Role)
	}
}

func TestIssueRejectsCancelledProject(t *testing.T) {
	h := newInvitationHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)

	if err := h.db.Model(&projectdomain.Project{}).
		Where("id = ?", projectID).
		Update("status", projectdomain.StatusCancelled).Error; err != nil {
		t.Fatalf("cancel project: %v", err)
	}

	_, err := h.svc.Issue(context.Background(), ownerID, domain.IssueRequest{
		ProjectID: projectID.String(),
		Email:     "mason@example.com",
		Role:      domain.RoleContractor,
	})
	if err != domain.ErrProjectCancelled {
		t.Fatalf("expected ErrProjectCancelled, got %v", err)
	}
}

func TestResolveUnknownToken(t *testing.T) {
	h := newInvitationHarness(t, config.DefaultWorkflowConfig())

	_, err := h.svc.Resolve(context.Background(), "0000000000000000000000000000000000000000000000000000000000000000")
	if err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveExpiresByClockWithoutSweep(t *testing.T) {
	h := newInvitationHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)
	issued := h.issue(t, projectID, ownerID, "mason@example.com", domain.RoleContractor)

	h.clock.Advance(8 * 24 * time.Hour)

	// The row still says pending; the deadline alone decides.
	resolved, err := h.svc.Resolve(context.Background(), issued.RawToken)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Resolution != domain.ResolutionExpired {
		t.Fatalf("expected expired, got %s", resolved.Resolution)
	}

	var status string
	if err := h.db.Model(&domain.Invitation{}).
		Where("token_hash = ?", hashToken(issued.RawToken)).
		Pluck("status", &status).Error; err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != domain.StatusPending {
		t.Fatalf("expected stored status to stay pending, got %s", status)
	}
}

func TestAcceptAddsMemberAndReplays(t *testing.T) {
	h := newInvitationHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)
	issued := h.issue(t, projectID, ownerID, "mason@example.com", domain.RoleContractor)

	inviteeID := h.node.Generate()
	resp, err := h.svc.Accept(context.Background(), inviteeID, "mason@example.com", issued.RawToken)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if resp.ProjectID != projectID.String() || resp.Role != domain.RoleContractor {
		t.Fatalf("unexpected accept response: %+v", resp)
	}

	var count int64
	if err := h.db.Model(&projectdomain.ProjectMember{}).
		Where("project_id = ?", projectID).Count(&count).Error; err != nil {
		t.Fatalf("count members: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 members after accept, got %d", count)
	}

	// The token is burnt. Even the user who accepted it gets a
	// conflict on replay, and membership stays as it is.
	if _, err := h.svc.Accept(context.Background(), inviteeID, "mason@example.com", issued.RawToken); err != domain.ErrAlreadyProcessed {
		t.Fatalf("expected ErrAlreadyProcessed on replay, got %v", err)
	}
	if err := h.db.Model(&projectdomain.ProjectMember{}).
		Where("project_id = ?", projectID).Count(&count).Error; err != nil {
		t.Fatalf("recount members: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected membership unchanged after replay, got %d", count)
	}

	// A different user hitting the consumed link sees the same conflict.
	otherID := h.node.Generate()
	if _, err := h.svc.Accept(context.Background(), otherID, "mason@example.com", issued.RawToken); err != domain.ErrAlreadyProcessed {
		t.Fatalf("expected ErrAlreadyProcessed for other user, got %v", err)
	}
}

func TestResolveExpiredBeatsTerminalStatus(t *testing.T) {
	h := newInvitationHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)
	issued := h.issue(t, projectID, ownerID, "mason@example.com", domain.RoleContractor)

	inviteeID := h.node.Generate()
	if _, err := h.svc.Accept(context.Background(), inviteeID, "mason@example.com", issued.RawToken); err != nil {
		t.Fatalf("accept: %v", err)
	}

	h.clock.Advance(8 * 24 * time.Hour)

	// Once the deadline passes, the stored accepted status no longer
	// matters to the resolver.
	resolved, err := h.svc.Resolve(context.Background(), issued.RawToken)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Resolution != domain.ResolutionExpired {
		t.Fatalf("expected expired, got %s", resolved.Resolution)
	}
}

func TestAcceptEmailMismatch(t *testing.T) {
	h := newInvitationHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)
	issued := h.issue(t, projectID, ownerID, "mason@example.com", domain.RoleContractor)

	inviteeID := h.node.Generate()
	_, err := h.svc.Accept(context.Background(), inviteeID, "intruder@example.com", issued.RawToken)
	if err != domain.ErrEmailMismatch {
		t.Fatalf("expected ErrEmailMismatch, got %v", err)
	}
}

func TestAcceptExpiredToken(t *testing.T) {
	h := newInvitationHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)
	issued := h.issue(t, projectID, ownerID, "mason@example.com", domain.RoleContractor)

	h.clock.Advance(8 * 24 * time.Hour)

	inviteeID := h.node.Generate()
	_, err := h.svc.Accept(context.Background(), inviteeID, "mason@example.com", issued.RawToken)
	if err != domain.ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestAcceptTeamFull(t *testing.T) {
	workflow := config.DefaultWorkflowConfig()
	workflow.MaxTeamSize = 2
	h := newInvitationHarness(t, workflow)
	projectID, ownerID := h.seedProject(t)
	issued := h.issue(t, projectID, ownerID, "mason@example.com", domain.RoleContractor)

	// A second member joins between issue and accept, filling the roster.
	filler := projectdomain.ProjectMember{
		ID:        h.node.Generate(),
		ProjectID: projectID,
		UserID:    h.node.Generate(),
		Role:      projectdomain.RoleInspector,
		CreatedAt: h.clock.Now(),
	}
	if err := h.db.Create(&filler).Error; err != nil {
		t.Fatalf("seed filler member: %v", err)
	}

	inviteeID := h.node.Generate()
	_, err := h.svc.Accept(context.Background(), inviteeID, "mason@example.com", issued.RawToken)
	if err != domain.ErrTeamFull {
		t.Fatalf("expected ErrTeamFull, got %v", err)
	}

	// The invite survives the failed accept and stays usable once a seat
	// frees up.
	resolved, err := h.svc.Resolve(context.Background(), issued.RawToken)
	if err != nil {
		t.Fatalf("resolve after team full: %v", err)
	}
	if resolved.Resolution != domain.ResolutionPending {
		t.Fatalf("expected pending after failed accept, got %s", resolved.Resolution)
	}
}

func TestDeclineThenAcceptConflicts(t *testing.T) {
	h := newInvitationHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)
	issued := h.issue(t, projectID, ownerID, "mason@example.com", domain.RoleContractor)

	if err := h.svc.Decline(context.Background(), "mason@example.com", issued.RawToken); err != nil {
		t.Fatalf("decline: %v", err)
	}

	inviteeID := h.node.Generate()
	if _, err := h.svc.Accept(context.Background(), inviteeID, "mason@example.com", issued.RawToken); err != domain.ErrAlreadyProcessed {
		t.Fatalf("expected ErrAlreadyProcessed after decline, got %v", err)
	}
}

func TestRevokeTerminalInviteConflicts(t *testing.T) {
	h := newInvitationHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)
	issued := h.issue(t, projectID, ownerID, "mason@example.com", domain.RoleContractor)

	if err := h.svc.Revoke(context.Background(), issued.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := h.svc.Revoke(context.Background(), issued.ID); err != domain.ErrAlreadyProcessed {
		t.Fatalf("expected ErrAlreadyProcessed on second revoke, got %v", err)
	}

	resolved, err := h.svc.Resolve(context.Background(), issued.RawToken)
	if err != nil {
		t.Fatalf("resolve revoked: %v", err)
	}
	if resolved.Resolution != domain.ResolutionAlreadyProcessed {
		t.Fatalf("expected already_processed, got %s", resolved.Resolution)
	}
}

func TestExpirePendingSweep(t *testing.T) {
	h := newInvitationHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)
	h.issue(t, projectID, ownerID, "mason@example.com", domain.RoleContractor)
	h.issue(t, projectID, ownerID, "plumber@example.com", domain.RoleContractor)

	h.clock.Advance(8 * 24 * time.Hour)

	expired, err := h.svc.ExpirePending(context.Background(), h.clock.Now())
	if err != nil {
		t.Fatalf("expire pending: %v", err)
	}
	if expired != 2 {
		t.Fatalf("expected 2 expired invitations, got %d", expired)
	}

	// Sweeping again is a no-op.
	expired, err = h.svc.ExpirePending(context.Background(), h.clock.Now())
	if err != nil {
		t.Fatalf("expire pending again: %v", err)
	}
	if expired != 0 {
		t.Fatalf("expected 0 on second sweep, got %d", expired)
	}
}
