package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	authdomain "github.com/timberline-hq/timberline/internal/auth/domain"
	invitationdomain "github.com/timberline-hq/timberline/internal/invitation/domain"
)

type fakeInvitationService struct {
	resolveResult *invitationdomain.ResolveResponse
	resolveErr    error
	acceptErr     error
	declineErr    error
}

func (f *fakeInvitationService) Issue(ctx context.Context, userID snowflake.ID, req invitationdomain.IssueRequest) (*invitationdomain.IssueResponse, error) {
	return nil, invitationdomain.ErrNotFound
}

func (f *fakeInvitationService) Resolve(ctx context.Context, rawToken string) (*invitationdomain.ResolveResponse, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.resolveResult, nil
}

func (f *fakeInvitationService) Accept(ctx context.Context, userID snowflake.ID, userEmail string, rawToken string) (*invitationdomain.AcceptResponse, error) {
	if f.acceptErr != nil {
		return nil, f.acceptErr
	}
	return &invitationdomain.AcceptResponse{ProjectID: "1", Role: invitationdomain.RoleContractor}, nil
}

func (f *fakeInvitationService) Decline(ctx context.Context, userEmail string, rawToken string) error {
	return f.declineErr
}

func (f *fakeInvitationService) Revoke(ctx context.Context, invitationID string) error {
	return nil
}

func (f *fakeInvitationService) ListByProject(ctx context.Context, projectID string) ([]invitationdomain.InvitationResponse, error) {
	return nil, nil
}

func (f *fakeInvitationService) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func newInvitationRouter(svc invitationdomain.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	srv := &Server{invitationSvc: svc}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.GET("/api/invitations/:token", srv.ResolveInvitation)

	authed := router.Group("/api")
	authed.Use(func(c *gin.Context) {
		c.Set(contextUserKey, &authdomain.User{
			ID:    snowflake.ID(42),
			Email: "mason@example.com",
		})
		c.Next()
	})
	authed.POST("/invitations/:token/accept", srv.AcceptInvitation)
	authed.POST("/invitations/:token/decline", srv.DeclineInvitation)

	return router
}

func TestResolveInvitationPending(t *testing.T) {
	expires := time.Date(2026, 3, 17, 9, 0, 0, 0, time.UTC)
	svc := &fakeInvitationService{
		resolveResult: &invitationdomain.ResolveResponse{
			Resolution: invitationdomain.ResolutionPending,
			ProjectID:  "1",
			Email:      "mason@example.com",
			Role:       invitationdomain.RoleContractor,
			ExpiresAt:  expires,
		},
	}
	router := newInvitationRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/invitations/sometoken", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body invitationdomain.ResolveResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Resolution != invitationdomain.ResolutionPending || body.Email != "mason@example.com" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestResolveInvitationUnknownToken(t *testing.T) {
	svc := &fakeInvitationService{resolveErr: invitationdomain.ErrNotFound}
	router := newInvitationRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/invitations/unknown", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestAcceptInvitationExpiredMapsToGone(t *testing.T) {
	svc := &fakeInvitationService{acceptErr: invitationdomain.ErrExpired}
	router := newInvitationRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/invitations/sometoken/accept", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAcceptInvitationConflictStatuses(t *testing.T) {
	svc := &fakeInvitationService{acceptErr: invitationdomain.ErrAlreadyProcessed}
	router := newInvitationRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/invitations/sometoken/accept", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestDeclineInvitationEmailMismatchForbidden(t *testing.T) {
	svc := &fakeInvitationService{declineErr: invitationdomain.ErrEmailMismatch}
	router := newInvitationRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/invitations/sometoken/decline", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAcceptInvitationAccepted(t *testing.T) {
	svc := &fakeInvitationService{}
	router := newInvitationRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/invitations/sometoken/accept", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body invitationdomain.AcceptResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Role != invitationdomain.RoleContractor {
		t.Fatalf("unexpected body: %+v", body)
	}
}
