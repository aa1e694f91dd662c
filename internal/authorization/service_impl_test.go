package authorization

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	authdomain "github.com/timberline-hq/timberline/internal/auth/domain"
	projectdomain "github.com/timberline-hq/timberline/internal/project/domain"
)

type authzHarness struct {
	svc  Service
	db   *gorm.DB
	node *snowflake.Node
}

func newAuthzHarness(t *testing.T) *authzHarness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
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

	if err := db.AutoMigrate(&authdomain.User{}, &projectdomain.Project{}, &projectdomain.ProjectMember{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	enforcer, err := NewEnforcer(db)
	if err != nil {
		t.Fatalf("enforcer: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Enforcer: enforcer,
	})
	return &authzHarness{svc: svc, db: db, node: node}
}

func (h *authzHarness) seedUser(t *testing.T, accountType string) snowflake.ID {
	t.Helper()
	userID := h.node.Generate()
	user := authdomain.User{
		ID:          userID,
		Email:       fmt.Sprintf("%s@example.com", userID),
		DisplayName: "test user",
		AccountType: accountType,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := h.db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return userID
}

func (h *authzHarness) seedMember(t *testing.T, projectID, userID snowflake.ID, role string) {
	t.Helper()
	member := projectdomain.ProjectMember{
		ID:        h.node.Generate(),
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		CreatedAt: time.Now(),
	}
	if err := h.db.Create(&member).Error; err != nil {
		t.Fatalf("seed member: %v", err)
	}
}

func TestAuthorizeRequiresActorPrefix(t *testing.T) {
	h := newAuthzHarness(t)
	userID := h.seedUser(t, authdomain.AccountContractor)
	projectID := h.node.Generate()
	h.seedMember(t, projectID, userID, projectdomain.RoleContractor)

	// The session middleware hands over "user:<id>"; anything else is
	// rejected outright.
	if err := h.svc.Authorize(context.Background(), "user:"+userID.String(), projectID.String(), ObjectTimeline, ActionTimelineAppend); err != nil {
		t.Fatalf("expected contractor to append timeline, got %v", err)
	}
	if err := h.svc.Authorize(context.Background(), userID.String(), projectID.String(), ObjectTimeline, ActionTimelineAppend); err != ErrInvalidActor {
		t.Fatalf("expected ErrInvalidActor for bare id, got %v", err)
	}
	if err := h.svc.Authorize(context.Background(), "robot", projectID.String(), ObjectTimeline, ActionTimelineAppend); err != ErrInvalidActor {
		t.Fatalf("expected ErrInvalidActor, got %v", err)
	}
}

func TestAuthorizeRoleGrants(t *testing.T) {
	h := newAuthzHarness(t)
	projectID := h.node.Generate()

	clientID := h.seedUser(t, authdomain.AccountClient)
	h.seedMember(t, projectID, clientID, projectdomain.RoleClient)
	inspectorID := h.seedUser(t, authdomain.AccountContractor)
	h.seedMember(t, projectID, inspectorID, projectdomain.RoleInspector)
	strangerID := h.seedUser(t, authdomain.AccountContractor)

	if err := h.svc.Authorize(context.Background(), "user:"+clientID.String(), projectID.String(), ObjectInvitation, ActionInvitationIssue); err != nil {
		t.Fatalf("expected client to issue invitations, got %v", err)
	}
	if err := h.svc.Authorize(context.Background(), "user:"+inspectorID.String(), projectID.String(), ObjectInvitation, ActionInvitationIssue); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden for inspector, got %v", err)
	}
	if err := h.svc.Authorize(context.Background(), "user:"+strangerID.String(), projectID.String(), ObjectProject, ActionProjectView); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden for non-member, got %v", err)
	}
}

func TestAuthorizeAwardIsAdminOnly(t *testing.T) {
	h := newAuthzHarness(t)
	projectID := h.node.Generate()

	clientID := h.seedUser(t, authdomain.AccountClient)
	h.seedMember(t, projectID, clientID, projectdomain.RoleClient)
	adminID := h.seedUser(t, authdomain.AccountAdmin)

	for _, action := range []string{ActionBidAward, ActionBidReject} {
		if err := h.svc.Authorize(context.Background(), "user:"+clientID.String(), projectID.String(), ObjectBid, action); err != ErrForbidden {
			t.Fatalf("expected ErrForbidden for client on %s, got %v", action, err)
		}
		if err := h.svc.Authorize(context.Background(), "user:"+adminID.String(), projectID.String(), ObjectBid, action); err != nil {
			t.Fatalf("expected admin to %s, got %v", action, err)
		}
	}
}
