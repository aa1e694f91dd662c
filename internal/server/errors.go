package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	auditdomain "github.com/timberline-hq/timberline/internal/audit/domain"
	authdomain "github.com/timberline-hq/timberline/internal/auth/domain"
	"github.com/timberline-hq/timberline/internal/authorization"
	biddingdomain "github.com/timberline-hq/timberline/internal/bidding/domain"
	documentdomain "github.com/timberline-hq/timberline/internal/document/domain"
	invitationdomain "github.com/timberline-hq/timberline/internal/invitation/domain"
	notificationdomain "github.com/timberline-hq/timberline/internal/notification/domain"
	orderdomain "github.com/timberline-hq/timberline/internal/order/domain"
	projectdomain "github.com/timberline-hq/timberline/internal/project/domain"
	reportdomain "github.com/timberline-hq/timberline/internal/report/domain"
	timelinedomain "github.com/timberline-hq/timberline/internal/timeline/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionExpired),
		errors.Is(err, authdomain.ErrSessionRevoked):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, invitationdomain.ErrEmailMismatch),
		errors.Is(err, biddingdomain.ErrNotBidOwner):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, invitationdomain.ErrExpired):
		return http.StatusGone, errorPayload{
			Type:    "expired",
			Message: "no longer available",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, authdomain.ErrInvalidEmail),
		errors.Is(err, authdomain.ErrWeakPassword),
		errors.Is(err, authdomain.ErrInvalidAccountType),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, authorization.ErrInvalidProject),
		errors.Is(err, authorization.ErrInvalidObject),
		errors.Is(err, authorization.ErrInvalidAction),
		errors.Is(err, projectdomain.ErrInvalidName),
		errors.Is(err, projectdomain.ErrInvalidProject),
		errors.Is(err, projectdomain.ErrInvalidStatus),
		errors.Is(err, projectdomain.ErrInvalidDateRange),
		errors.Is(err, projectdomain.ErrInvalidUser),
		errors.Is(err, invitationdomain.ErrInvalidEmail),
		errors.Is(err, invitationdomain.ErrInvalidRole),
		errors.Is(err, invitationdomain.ErrInvalidProject),
		errors.Is(err, invitationdomain.ErrInvalidUser),
		errors.Is(err, timelinedomain.ErrInvalidPhase),
		errors.Is(err, timelinedomain.ErrInvalidTitle),
		errors.Is(err, timelinedomain.ErrInvalidProgress),
		errors.Is(err, timelinedomain.ErrInvalidDate),
		errors.Is(err, timelinedomain.ErrInvalidProject),
		errors.Is(err, timelinedomain.ErrTooManyImages),
		errors.Is(err, documentdomain.ErrInvalidKind),
		errors.Is(err, documentdomain.ErrInvalidProject),
		errors.Is(err, documentdomain.ErrNoFiles),
		errors.Is(err, documentdomain.ErrTooManyFiles),
		errors.Is(err, biddingdomain.ErrInvalidTitle),
		errors.Is(err, biddingdomain.ErrInvalidCategory),
		errors.Is(err, biddingdomain.ErrInvalidAmount),
		errors.Is(err, biddingdomain.ErrInvalidDeadline),
		errors.Is(err, biddingdomain.ErrInvalidProject),
		errors.Is(err, orderdomain.ErrInvalidSupplier),
		errors.Is(err, orderdomain.ErrNoItems),
		errors.Is(err, orderdomain.ErrInvalidItem),
		errors.Is(err, orderdomain.ErrInvalidStatus),
		errors.Is(err, orderdomain.ErrInvalidProject),
		errors.Is(err, reportdomain.ErrInvalidProject),
		errors.Is(err, reportdomain.ErrInvalidPeriod),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, authdomain.ErrUserExists),
		errors.Is(err, invitationdomain.ErrAlreadyProcessed),
		errors.Is(err, invitationdomain.ErrAlreadyMember),
		errors.Is(err, invitationdomain.ErrTeamFull),
		errors.Is(err, invitationdomain.ErrProjectCancelled),
		errors.Is(err, projectdomain.ErrInvalidTransition),
		errors.Is(err, projectdomain.ErrOwnerImmutable),
		errors.Is(err, timelinedomain.ErrProjectClosed),
		errors.Is(err, biddingdomain.ErrAlreadyAwarded),
		errors.Is(err, biddingdomain.ErrDuplicateBid),
		errors.Is(err, biddingdomain.ErrTooManyBids),
		errors.Is(err, biddingdomain.ErrBiddingClosed),
		errors.Is(err, biddingdomain.ErrNotPublished),
		errors.Is(err, biddingdomain.ErrNotDraft),
		errors.Is(err, biddingdomain.ErrBidMismatch),
		errors.Is(err, biddingdomain.ErrBidNotPending),
		errors.Is(err, orderdomain.ErrInvalidTransition):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, authdomain.ErrUserNotFound),
		errors.Is(err, projectdomain.ErrProjectNotFound),
		errors.Is(err, projectdomain.ErrMemberNotFound),
		errors.Is(err, invitationdomain.ErrNotFound),
		errors.Is(err, documentdomain.ErrNotFound),
		errors.Is(err, biddingdomain.ErrRequestNotFound),
		errors.Is(err, biddingdomain.ErrBidNotFound),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, notificationdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
