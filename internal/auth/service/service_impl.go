package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/timberline-hq/timberline/internal/auth/domain"
	"github.com/timberline-hq/timberline/internal/clock"
	"github.com/timberline-hq/timberline/pkg/db"
)

const (
	sessionTTL        = 30 * 24 * time.Hour
	minPasswordLength = 8
)

type service struct {
	db    *gorm.DB
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(database *gorm.DB, repo domain.Repository, genID *snowflake.Node, clk clock.Clock) domain.Service {
	return &service{
		db:    database,
		repo:  repo,
		genID: genID,
		clock: clk,
	}
}

func (s *service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.ErrInvalidEmail
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = email
	}

	accountType := strings.TrimSpace(req.AccountType)
	if accountType == "" {
		accountType = domain.AccountClient
	}
	if !domain.ValidAccountType(accountType) {
		return nil, domain.ErrInvalidAccountType
	}

	if len(req.Password) < minPasswordLength {
		return nil, domain.ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	hashStr := string(hash)

	now := s.clock.Now()
	user := domain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		DisplayName:  displayName,
		AccountType:  accountType,
		PasswordHash: &hashStr,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrUserExists
		}
		return nil, err
	}

	return &user, nil
}

func (s *service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil {
		return nil, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	rawToken, tokenHash, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	sess := domain.Session{
		ID:        s.genID.Generate(),
		UserID:    user.ID,
		TokenHash: tokenHash,
		ExpiresAt: now.Add(sessionTTL),
		UserAgent: req.UserAgent,
		IPAddress: req.IPAddress,
		CreatedAt: now,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	return &domain.LoginResult{
		User:      user,
		Session:   &sess,
		RawToken:  rawToken,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

func (s *service) Logout(ctx context.Context, rawToken string) error {
	sess, err := s.repo.GetSessionByTokenHash(ctx, hashToken(rawToken))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return s.repo.RevokeSession(ctx, sess.ID)
}

func (s *service) Authenticate(ctx context.Context, rawToken string) (*domain.User, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, domain.ErrInvalidSession
	}

	sess, err := s.repo.GetSessionByTokenHash(ctx, hashToken(rawToken))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}
	if sess.RevokedAt != nil {
		return nil, domain.ErrSessionRevoked
	}
	if !s.clock.Now().Before(sess.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}

	user, err := s.repo.GetUser(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}
	return user, nil
}

func (s *service) ChangePassword(ctx context.Context, userID snowflake.ID, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return domain.ErrWeakPassword
	}
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrUserNotFound
		}
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, userID, string(hash))
}

func (s *service) GetUser(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *service) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// newSessionToken returns the raw token handed to the client and the
// sha256 hex digest stored at rest.
func newSessionToken() (string, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw := hex.EncodeToString(buf)
	return raw, hashToken(raw), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
