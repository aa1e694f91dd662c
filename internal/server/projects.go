package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"github.com/timberline-hq/timberline/internal/authorization"
	projectdomain "github.com/timberline-hq/timberline/internal/project/domain"
)

func (s *Server) CreateProject(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req projectdomain.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	project, err := s.projectSvc.Create(c.Request.Context(), userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, project)
}

func (s *Server) ListProjects(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	projects, err := s.projectSvc.ListByUser(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (s *Server) GetProject(c *gin.Context) {
	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		AbortWithError(c, projectdomain.ErrInvalidProject)
		return
	}
	if !s.authorize(c, projectID, authorization.ObjectProject, authorization.ActionProjectView) {
		return
	}

	project, err := s.projectSvc.GetByID(c.Request.Context(), projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, project)
}

func (s *Server) UpdateProject(c *gin.Context) {
	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		AbortWithError(c, projectdomain.ErrInvalidProject)
		return
	}
	if !s.authorize(c, projectID, authorization.ObjectProject, authorization.ActionProjectUpdate) {
		return
	}

	var req projectdomain.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	project, err := s.projectSvc.Update(c.Request.Context(), projectID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, project)
}

type updateProjectStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) UpdateProjectStatus(c *gin.Context) {
	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		AbortWithError(c, projectdomain.ErrInvalidProject)
		return
	}

	var req updateProjectStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	action := authorization.ActionProjectUpdate
	if req.Status == projectdomain.StatusCancelled {
		action = authorization.ActionProjectCancel
	}
	if !s.authorize(c, projectID, authorization.ObjectProject, action) {
		return
	}

	project, err := s.projectSvc.UpdateStatus(c.Request.Context(), projectID, req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, project)
}

func (s *Server) ListProjectMembers(c *gin.Context) {
	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		AbortWithError(c, projectdomain.ErrInvalidProject)
		return
	}
	if !s.authorize(c, projectID, authorization.ObjectProject, authorization.ActionProjectView) {
		return
	}

	members, err := s.projectSvc.ListMembers(c.Request.Context(), projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (s *Server) RemoveProjectMember(c *gin.Context) {
	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		AbortWithError(c, projectdomain.ErrInvalidProject)
		return
	}
	if !s.authorize(c, projectID, authorization.ObjectProject, authorization.ActionProjectUpdate) {
		return
	}

	memberID, err := snowflake.ParseString(strings.TrimSpace(c.Param("userId")))
	if err != nil {
		AbortWithError(c, projectdomain.ErrMemberNotFound)
		return
	}

	if err := s.projectSvc.RemoveMember(c.Request.Context(), projectID, memberID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
