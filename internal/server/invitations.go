package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/timberline-hq/timberline/internal/authorization"
	invitationdomain "github.com/timberline-hq/timberline/internal/invitation/domain"
)

type inviteMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *Server) InviteProjectMember(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		AbortWithError(c, invitationdomain.ErrInvalidProject)
		return
	}
	if !s.authorize(c, projectID, authorization.ObjectInvitation, authorization.ActionInvitationIssue) {
		return
	}

	var req inviteMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invite, err := s.invitationSvc.Issue(c.Request.Context(), userID, invitationdomain.IssueRequest{
		ProjectID: projectID,
		Email:     req.Email,
		Role:      req.Role,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, invite)
}

func (s *Server) ListProjectInvitations(c *gin.Context) {
	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		AbortWithError(c, invitationdomain.ErrInvalidProject)
		return
	}
	if !s.authorize(c, projectID, authorization.ObjectInvitation, authorization.ActionInvitationView) {
		return
	}

	invitations, err := s.invitationSvc.ListByProject(c.Request.Context(), projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invitations": invitations})
}

func (s *Server) RevokeInvitation(c *gin.Context) {
	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		AbortWithError(c, invitationdomain.ErrInvalidProject)
		return
	}
	if !s.authorize(c, projectID, authorization.ObjectInvitation, authorization.ActionInvitationRevoke) {
		return
	}

	invitationID := strings.TrimSpace(c.Param("invitationId"))
	if invitationID == "" {
		AbortWithError(c, invitationdomain.ErrNotFound)
		return
	}

	if err := s.invitationSvc.Revoke(c.Request.Context(), invitationID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ResolveInvitation is the public invite-link endpoint. It never leaks
// whether a token ever existed beyond the documented resolutions.
func (s *Server) ResolveInvitation(c *gin.Context) {
	rawToken := strings.TrimSpace(c.Param("token"))
	if rawToken == "" {
		AbortWithError(c, invitationdomain.ErrNotFound)
		return
	}

	resolution, err := s.invitationSvc.Resolve(c.Request.Context(), rawToken)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resolution)
}

func (s *Server) AcceptInvitation(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	rawToken := strings.TrimSpace(c.Param("token"))
	if rawToken == "" {
		AbortWithError(c, invitationdomain.ErrNotFound)
		return
	}

	result, err := s.invitationSvc.Accept(c.Request.Context(), user.ID, user.Email, rawToken)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) DeclineInvitation(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	rawToken := strings.TrimSpace(c.Param("token"))
	if rawToken == "" {
		AbortWithError(c, invitationdomain.ErrNotFound)
		return
	}

	if err := s.invitationSvc.Decline(c.Request.Context(), user.Email, rawToken); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
