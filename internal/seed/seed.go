// Package seed bootstraps the records a fresh deployment needs before
// anyone can log in.
package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	authdomain "github.com/timberline-hq/timberline/internal/auth/domain"
)

const (
	defaultAdminEmail    = "admin@timberline.build"
	defaultAdminPassword = "admin"
	defaultAdminDisplay  = "Timberline Admin"
)

// EnsureDefaultAdmin seeds the back-office admin account for
// self-hosted installs. The account is marked is_default so operators
// can tell it apart from real admins and rotate it.
func EnsureDefaultAdmin(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user authdomain.User
		err := tx.WithContext(ctx).
			Where("email = ?", strings.ToLower(defaultAdminEmail)).
			First(&user).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(defaultAdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		hash := string(hashed)
		now := time.Now().UTC()
		user = authdomain.User{
			ID:           node.Generate(),
			Email:        strings.ToLower(defaultAdminEmail),
			DisplayName:  defaultAdminDisplay,
			AccountType:  authdomain.AccountAdmin,
			PasswordHash: &hash,
			IsDefault:    true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return tx.WithContext(ctx).Create(&user).Error
	})
}
