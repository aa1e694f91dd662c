package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	auditdomain "github.com/timberline-hq/timberline/internal/audit/domain"
	authdomain "github.com/timberline-hq/timberline/internal/auth/domain"
)

type SignupRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	AccountType string `json:"account_type"`
	Password    string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	AccountType string `json:"account_type"`
}

func toUserResponse(user *authdomain.User) userResponse {
	return userResponse{
		ID:          user.ID.String(),
		Email:       user.Email,
		DisplayName: user.DisplayName,
		AccountType: user.AccountType,
	}
}

func (s *Server) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	accountType := strings.TrimSpace(req.AccountType)
	if accountType == "" {
		accountType = authdomain.AccountClient
	}
	if accountType == authdomain.AccountAdmin {
		// Admin accounts are never self-service.
		AbortWithError(c, authdomain.ErrInvalidAccountType)
		return
	}

	user, err := s.authSvc.CreateUser(c.Request.Context(), authdomain.CreateUserRequest{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		AccountType: accountType,
		Password:    req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		userID := user.ID.String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, string(auditdomain.ActorTypeUser), &userID, "user.signup", "user", &userID, map[string]any{
			"email":        user.Email,
			"account_type": user.AccountType,
		})
	}

	c.JSON(http.StatusCreated, toUserResponse(user))
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	email := strings.TrimSpace(req.Email)
	result, err := s.authSvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Email:     email,
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		if s.auditSvc != nil {
			_ = s.auditSvc.AuditLog(c.Request.Context(), nil, string(auditdomain.ActorTypeUser), nil, "user.login_failed", "user", nil, map[string]any{
				"email": email,
			})
		}
		AbortWithError(c, err)
		return
	}

	s.sessions.Set(c, result.RawToken, result.ExpiresAt)

	if s.auditSvc != nil {
		userID := result.User.ID.String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, string(auditdomain.ActorTypeUser), &userID, "user.login", "user", &userID, map[string]any{
			"email": email,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"user":       toUserResponse(result.User),
		"expires_at": result.ExpiresAt,
	})
}

func (s *Server) Logout(c *gin.Context) {
	if rawToken, ok := s.sessions.ReadToken(c); ok {
		if err := s.authSvc.Logout(c.Request.Context(), rawToken); err != nil {
			AbortWithError(c, err)
			return
		}
	}
	s.sessions.Clear(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) Me(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (s *Server) ChangePassword(c *gin.Context) {
	user, ok := s.currentUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	currentPassword := strings.TrimSpace(req.CurrentPassword)
	newPassword := strings.TrimSpace(req.NewPassword)
	if currentPassword == "" {
		AbortWithError(c, newValidationError("current_password", "required", "current password is required"))
		return
	}
	if currentPassword == newPassword {
		AbortWithError(c, newValidationError("new_password", "must_differ", "new password must be different"))
		return
	}

	if user.PasswordHash == nil || !verifyPassword(currentPassword, *user.PasswordHash) {
		AbortWithError(c, authdomain.ErrInvalidCredentials)
		return
	}

	if err := s.authSvc.ChangePassword(c.Request.Context(), user.ID, newPassword); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func verifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
