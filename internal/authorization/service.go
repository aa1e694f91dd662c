// Package authorization enforces project-scoped access control with
// casbin. Role bindings come from project membership; policies are
// seeded at startup and persisted through the gorm adapter.
package authorization

import (
	"context"
	"errors"

	"go.uber.org/fx"
)

const (
	ObjectProject        = "project"
	ObjectInvitation     = "invitation"
	ObjectTimeline       = "timeline"
	ObjectServiceRequest = "service_request"
	ObjectBid            = "bid"
	ObjectDocument       = "document"
	ObjectOrder          = "order"
	ObjectAuditLog       = "audit_log"
	ObjectReport         = "report"
)

const (
	ActionProjectView    = "project.view"
	ActionProjectCreate  = "project.create"
	ActionProjectUpdate  = "project.update"
	ActionProjectCancel = "project.cancel"

	ActionInvitationIssue  = "invitation.issue"
	ActionInvitationView   = "invitation.view"
	ActionInvitationRevoke = "invitation.revoke"

	ActionTimelineAppend = "timeline.append"
	ActionTimelineView   = "timeline.view"

	ActionServiceRequestCreate  = "service_request.create"
	ActionServiceRequestPublish = "service_request.publish"
	ActionServiceRequestView    = "service_request.view"

	ActionBidSubmit = "bid.submit"
	ActionBidView   = "bid.view"
	ActionBidAward  = "bid.award"
	ActionBidReject = "bid.reject"

	ActionDocumentUpload = "document.upload"
	ActionDocumentView   = "document.view"
	ActionDocumentDelete = "document.delete"

	ActionOrderCreate = "order.create"
	ActionOrderView   = "order.view"
	ActionOrderUpdate = "order.update"
	ActionOrderCancel = "order.cancel"

	ActionAuditLogView = "audit_log.view"

	ActionReportView   = "report.view"
	ActionReportExport = "report.export"
)

var (
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidActor   = errors.New("invalid_actor")
	ErrInvalidProject = errors.New("invalid_project")
	ErrInvalidObject  = errors.New("invalid_object")
	ErrInvalidAction  = errors.New("invalid_action")
)

// Service answers "may this actor perform this action on this object
// within this project". Actors are "user:<id>" or "system".
type Service interface {
	Authorize(ctx context.Context, actor string, projectID string, object string, action string) error
}

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
