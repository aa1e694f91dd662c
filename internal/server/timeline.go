package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/timberline-hq/timberline/internal/authorization"
	timelinedomain "github.com/timberline-hq/timberline/internal/timeline/domain"
)

func (s *Server) AppendTimelineEntry(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		AbortWithError(c, timelinedomain.ErrInvalidProject)
		return
	}
	if !s.authorize(c, projectID, authorization.ObjectTimeline, authorization.ActionTimelineAppend) {
		return
	}

	var req timelinedomain.AppendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ProjectID = projectID

	result, err := s.timelineSvc.Append(c.Request.Context(), userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (s *Server) ListTimeline(c *gin.Context) {
	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		AbortWithError(c, timelinedomain.ErrInvalidProject)
		return
	}
	if !s.authorize(c, projectID, authorization.ObjectTimeline, authorization.ActionTimelineView) {
		return
	}

	entries, err := s.timelineSvc.List(c.Request.Context(), projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
