package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	notificationdomain "github.com/timberline-hq/timberline/internal/notification/domain"
)

func (s *Server) ListNotifications(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	notifications, err := s.notificationSvc.ListForUser(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (s *Server) MarkNotificationRead(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	notificationID := strings.TrimSpace(c.Param("notificationId"))
	if notificationID == "" {
		AbortWithError(c, notificationdomain.ErrNotFound)
		return
	}

	if err := s.notificationSvc.MarkRead(c.Request.Context(), userID, notificationID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
