package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	Authenticate(ctx context.Context, rawToken string) (*User, error)
	ChangePassword(ctx context.Context, userID snowflake.ID, newPassword string) error
	GetUser(ctx context.Context, userID snowflake.ID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

type CreateUserRequest struct {
	Email       string
	DisplayName string
	AccountType string
	Password    string
}

type LoginRequest struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

type LoginResult struct {
	User      *User
	Session   *Session
	RawToken  string
	ExpiresAt time.Time
}

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidSession     = errors.New("invalid_session")
	ErrSessionExpired     = errors.New("session_expired")
	ErrSessionRevoked     = errors.New("session_revoked")
	ErrUserExists         = errors.New("user_exists")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrWeakPassword       = errors.New("weak_password")
	ErrInvalidAccountType = errors.New("invalid_account_type")
)
