package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/timberline-hq/timberline/internal/auth/domain"
	"github.com/timberline-hq/timberline/internal/auth/repository"
	"github.com/timberline-hq/timberline/internal/clock"
)

var testStart = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newAuthService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	if err := db.AutoMigrate(&domain.User{}, &domain.Session{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fake := clock.NewFakeClock(testStart)

	return New(db, repository.New(db), node, fake), fake
}

func signupUser(t *testing.T, svc domain.Service, email string) *domain.User {
	t.Helper()
	user, err := svc.CreateUser(context.Background(), domain.CreateUserRequest{
		Email:    email,
		Password: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func TestCreateUserNormalizesAndRejectsDuplicates(t *testing.T) {
	svc, _ := newAuthService(t)

	user := signupUser(t, svc, "Sven@Example.com")
	if user.Email != "sven@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.AccountType != domain.AccountClient {
		t.Fatalf("expected client default, got %s", user.AccountType)
	}
	if user.DisplayName != "sven@example.com" {
		t.Fatalf("expected email fallback display name, got %q", user.DisplayName)
	}

	_, err := svc.CreateUser(context.Background(), domain.CreateUserRequest{
		Email:    "sven@example.com",
		Password: "anotherpassword",
	})
	if err != domain.ErrUserExists {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestCreateUserWeakPassword(t *testing.T) {
	svc, _ := newAuthService(t)

	_, err := svc.CreateUser(context.Background(), domain.CreateUserRequest{
		Email:    "sven@example.com",
		Password: "short",
	})
	if err != domain.ErrWeakPassword {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestLoginAndAuthenticate(t *testing.T) {
	svc, fake := newAuthService(t)
	user := signupUser(t, svc, "sven@example.com")

	_, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "sven@example.com",
		Password: "wrong-password",
	})
	if err != domain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	result, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "Sven@Example.com",
		Password: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.User.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, result.User.ID)
	}

	authed, err := svc.Authenticate(context.Background(), result.RawToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, authed.ID)
	}

	// Sessions lapse after 30 days.
	fake.Advance(31 * 24 * time.Hour)
	if _, err := svc.Authenticate(context.Background(), result.RawToken); err != domain.ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	svc, _ := newAuthService(t)
	signupUser(t, svc, "sven@example.com")

	result, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "sven@example.com",
		Password: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := svc.Logout(context.Background(), result.RawToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), result.RawToken); err != domain.ErrSessionRevoked {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}

	// Logging out an unknown token is a no-op.
	if err := svc.Logout(context.Background(), "deadbeef"); err != nil {
		t.Fatalf("logout unknown token: %v", err)
	}
}

func TestChangePasswordInvalidatesOldCredential(t *testing.T) {
	svc, _ := newAuthService(t)
	user := signupUser(t, svc, "sven@example.com")

	if err := svc.ChangePassword(context.Background(), user.ID, "tiny"); err != domain.ErrWeakPassword {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), user.ID, "completely-new-pass"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if _, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "sven@example.com",
		Password: "hunter2hunter2",
	}); err != domain.ErrInvalidCredentials {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "sven@example.com",
		Password: "completely-new-pass",
	}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}
