package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/timberline-hq/timberline/internal/audit/domain"
	authdomain "github.com/timberline-hq/timberline/internal/auth/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, projectID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ErrInvalidProject
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, actorType, actorID, err := s.resolveActor(ctx, actor, projectID)
	if err != nil {
		s.auditDenied(ctx, actorType, actorID, projectID, object, action)
		return err
	}

	domain := fmt.Sprintf("project:%s", projectID)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorType, actorID, projectID, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditGranted(ctx, actorType, actorID, projectID, object, action)
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string, projectID string) (string, string, string, *string, error) {
	if actor == "system" {
		return actor, "role:system", "system", nil, nil
	}
	if strings.HasPrefix(actor, "user:") {
		userIDRaw := strings.TrimPrefix(actor, "user:")
		userID, err := snowflake.ParseString(userIDRaw)
		if err != nil || userID == 0 {
			return "", "", "", nil, ErrInvalidActor
		}
		userIDStr := userID.String()
		if isAdmin, err := s.isAdminUser(ctx, userID); err != nil {
			return actor, "", "user", &userIDStr, err
		} else if isAdmin {
			return actor, "role:admin", "user", &userIDStr, nil
		}
		parsedProjectID, err := snowflake.ParseString(projectID)
		if err != nil || parsedProjectID == 0 {
			return actor, "", "user", &userIDStr, ErrInvalidProject
		}
		role, err := s.roleForUser(ctx, parsedProjectID, userID)
		if err != nil {
			return actor, "", "user", &userIDStr, err
		}
		roleName := fmt.Sprintf("role:%s", strings.ToLower(role))
		return actor, roleName, "user", &userIDStr, nil
	}
	return "", "", "", nil, ErrInvalidActor
}

func (s *ServiceImpl) isAdminUser(ctx context.Context, userID snowflake.ID) (bool, error) {
	var row struct {
		AccountType string `gorm:"column:account_type"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT account_type FROM users WHERE id = ? LIMIT 1`,
		userID,
	).Scan(&row).Error; err != nil {
		return false, err
	}
	return strings.TrimSpace(row.AccountType) == authdomain.AccountAdmin, nil
}

func (s *ServiceImpl) roleForUser(ctx context.Context, projectID snowflake.ID, userID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM project_members
		 WHERE project_id = ? AND user_id = ?
		 LIMIT 1`,
		projectID,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType string, actorID *string, projectID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	parsedProjectID, err := snowflake.ParseString(projectID)
	if err != nil || parsedProjectID == 0 {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, &parsedProjectID, actorType, actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object":     object,
		"action":     action,
		"actor":      actorType,
		"project_id": projectID,
	})
}

func (s *ServiceImpl) auditGranted(ctx context.Context, actorType string, actorID *string, projectID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	parsedProjectID, err := snowflake.ParseString(projectID)
	if err != nil || parsedProjectID == 0 {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, &parsedProjectID, actorType, actorID, "authorization.granted", "authorization", &targetID, map[string]any{
		"object":     object,
		"action":     action,
		"actor":      actorType,
		"project_id": projectID,
	})
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionBidAward, ActionBidReject, ActionInvitationRevoke, ActionProjectCancel:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Client: owns the project end to end.
		{"role:client", "*", ObjectProject, ActionProjectView},
		{"role:client", "*", ObjectProject, ActionProjectUpdate},
		{"role:client", "*", ObjectProject, ActionProjectCancel},
		{"role:client", "*", ObjectInvitation, ActionInvitationIssue},
		{"role:client", "*", ObjectInvitation, ActionInvitationView},
		{"role:client", "*", ObjectInvitation, ActionInvitationRevoke},
		{"role:client", "*", ObjectTimeline, ActionTimelineView},
		{"role:client", "*", ObjectServiceRequest, ActionServiceRequestCreate},
		{"role:client", "*", ObjectServiceRequest, ActionServiceRequestPublish},
		{"role:client", "*", ObjectServiceRequest, ActionServiceRequestView},
		{"role:client", "*", ObjectBid, ActionBidView},
		{"role:client", "*", ObjectDocument, ActionDocumentUpload},
		{"role:client", "*", ObjectDocument, ActionDocumentView},
		{"role:client", "*", ObjectDocument, ActionDocumentDelete},
		{"role:client", "*", ObjectOrder, ActionOrderCreate},
		{"role:client", "*", ObjectOrder, ActionOrderView},
		{"role:client", "*", ObjectOrder, ActionOrderUpdate},
		{"role:client", "*", ObjectOrder, ActionOrderCancel},
		{"role:client", "*", ObjectReport, ActionReportView},
		{"role:client", "*", ObjectReport, ActionReportExport},

		// Contractor: runs the work and records progress.
		{"role:contractor", "*", ObjectProject, ActionProjectView},
		{"role:contractor", "*", ObjectTimeline, ActionTimelineAppend},
		{"role:contractor", "*", ObjectTimeline, ActionTimelineView},
		{"role:contractor", "*", ObjectServiceRequest, ActionServiceRequestView},
		{"role:contractor", "*", ObjectBid, ActionBidSubmit},
		{"role:contractor", "*", ObjectBid, ActionBidView},
		{"role:contractor", "*", ObjectDocument, ActionDocumentUpload},
		{"role:contractor", "*", ObjectDocument, ActionDocumentView},
		{"role:contractor", "*", ObjectOrder, ActionOrderCreate},
		{"role:contractor", "*", ObjectOrder, ActionOrderView},
		{"role:contractor", "*", ObjectOrder, ActionOrderUpdate},
		{"role:contractor", "*", ObjectReport, ActionReportView},

		// Project manager: runs the project day to day for the client.
		{"role:project_manager", "*", ObjectProject, ActionProjectView},
		{"role:project_manager", "*", ObjectProject, ActionProjectUpdate},
		{"role:project_manager", "*", ObjectInvitation, ActionInvitationIssue},
		{"role:project_manager", "*", ObjectInvitation, ActionInvitationView},
		{"role:project_manager", "*", ObjectTimeline, ActionTimelineAppend},
		{"role:project_manager", "*", ObjectTimeline, ActionTimelineView},
		{"role:project_manager", "*", ObjectServiceRequest, ActionServiceRequestCreate},
		{"role:project_manager", "*", ObjectServiceRequest, ActionServiceRequestPublish},
		{"role:project_manager", "*", ObjectServiceRequest, ActionServiceRequestView},
		{"role:project_manager", "*", ObjectBid, ActionBidView},
		{"role:project_manager", "*", ObjectDocument, ActionDocumentUpload},
		{"role:project_manager", "*", ObjectDocument, ActionDocumentView},
		{"role:project_manager", "*", ObjectDocument, ActionDocumentDelete},
		{"role:project_manager", "*", ObjectOrder, ActionOrderCreate},
		{"role:project_manager", "*", ObjectOrder, ActionOrderView},
		{"role:project_manager", "*", ObjectOrder, ActionOrderUpdate},
		{"role:project_manager", "*", ObjectOrder, ActionOrderCancel},
		{"role:project_manager", "*", ObjectReport, ActionReportView},
		{"role:project_manager", "*", ObjectReport, ActionReportExport},

		// Inspector: read everything, change nothing.
		{"role:inspector", "*", ObjectProject, ActionProjectView},
		{"role:inspector", "*", ObjectTimeline, ActionTimelineView},
		{"role:inspector", "*", ObjectServiceRequest, ActionServiceRequestView},
		{"role:inspector", "*", ObjectBid, ActionBidView},
		{"role:inspector", "*", ObjectDocument, ActionDocumentView},
		{"role:inspector", "*", ObjectOrder, ActionOrderView},
		{"role:inspector", "*", ObjectReport, ActionReportView},

		// Relative: follows along, sees progress and photos only.
		{"role:relative", "*", ObjectProject, ActionProjectView},
		{"role:relative", "*", ObjectTimeline, ActionTimelineView},
		{"role:relative", "*", ObjectDocument, ActionDocumentView},

		// Supplier: sees orders addressed to them.
		{"role:supplier", "*", ObjectOrder, ActionOrderView},
		{"role:supplier", "*", ObjectOrder, ActionOrderUpdate},

		// Admin: full back-office access in any project.
		{"role:admin", "*", ObjectProject, ActionProjectView},
		{"role:admin", "*", ObjectProject, ActionProjectUpdate},
		{"role:admin", "*", ObjectProject, ActionProjectCancel},
		{"role:admin", "*", ObjectInvitation, ActionInvitationIssue},
		{"role:admin", "*", ObjectInvitation, ActionInvitationView},
		{"role:admin", "*", ObjectInvitation, ActionInvitationRevoke},
		{"role:admin", "*", ObjectTimeline, ActionTimelineView},
		{"role:admin", "*", ObjectServiceRequest, ActionServiceRequestView},
		{"role:admin", "*", ObjectServiceRequest, ActionServiceRequestPublish},
		{"role:admin", "*", ObjectBid, ActionBidView},
		{"role:admin", "*", ObjectBid, ActionBidAward},
		{"role:admin", "*", ObjectBid, ActionBidReject},
		{"role:admin", "*", ObjectDocument, ActionDocumentView},
		{"role:admin", "*", ObjectDocument, ActionDocumentDelete},
		{"role:admin", "*", ObjectOrder, ActionOrderView},
		{"role:admin", "*", ObjectOrder, ActionOrderCancel},
		{"role:admin", "*", ObjectAuditLog, ActionAuditLogView},
		{"role:admin", "*", ObjectReport, ActionReportView},
		{"role:admin", "*", ObjectReport, ActionReportExport},

		// System: scheduler sweeps and other automated processes.
		{"role:system", "*", ObjectInvitation, ActionInvitationRevoke},
		{"role:system", "*", ObjectServiceRequest, ActionServiceRequestPublish},
		{"role:system", "*", ObjectBid, ActionBidReject},
	}

	for _, policy := range policies {
		if len(policy) < 4 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
