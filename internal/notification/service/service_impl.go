package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	authdomain "github.com/timberline-hq/timberline/internal/auth/domain"
	"github.com/timberline-hq/timberline/internal/clock"
	"github.com/timberline-hq/timberline/internal/config"
	"github.com/timberline-hq/timberline/internal/notification/domain"
	"github.com/timberline-hq/timberline/internal/providers/email"
	"github.com/timberline-hq/timberline/pkg/telemetry/correlation"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     config.Config
	Email   email.Provider
	AuthSvc authdomain.Service
	GenID   *snowflake.Node
	Clock   clock.Clock
}

// Service stores in-app notifications and mails them out. It also backs
// the notifier hooks the invitation and bidding services call.
type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     config.Config
	email   email.Provider
	authSvc authdomain.Service
	genID   *snowflake.Node
	clock   clock.Clock
}

func NewService(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("notification.service"),
		cfg:     p.Cfg,
		email:   p.Email,
		authSvc: p.AuthSvc,
		genID:   p.GenID,
		clock:   p.Clock,
	}
}

func (s *Service) ListForUser(ctx context.Context, userID snowflake.ID) ([]domain.NotificationResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	var notifications []domain.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(100).
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}

	resp := make([]domain.NotificationResponse, 0, len(notifications))
	for _, notification := range notifications {
		resp = append(resp, domain.NotificationResponse{
			ID:        notification.ID.String(),
			Kind:      notification.Kind,
			Subject:   notification.Subject,
			Body:      notification.Body,
			ReadAt:    notification.ReadAt,
			CreatedAt: notification.CreatedAt,
		})
	}
	return resp, nil
}

func (s *Service) MarkRead(ctx context.Context, userID snowflake.ID, notificationID string) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	id, err := snowflake.ParseString(strings.TrimSpace(notificationID))
	if err != nil || id == 0 {
		return domain.ErrNotFound
	}

	tx := s.db.WithContext(ctx).Model(&domain.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", id, userID).
		Update("read_at", s.clock.Now())
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&domain.Notification{}).
			Where("id = ? AND user_id = ?", id, userID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
	}
	return nil
}

// InvitationIssued mails the invite link to the invitee and records an
// in-app notification when the address belongs to a known account.
func (s *Service) InvitationIssued(ctx context.Context, to string, projectName string, role string, rawToken string, expiresAt time.Time) {
	ctx, correlationID := correlation.EnsureCorrelationID(ctx)
	inviteURL := fmt.Sprintf("%s/invitations/%s", s.cfg.PublicBaseURL, rawToken)
	subject := fmt.Sprintf("You're invited to join %s", projectName)

	var userID *snowflake.ID
	if user, err := s.authSvc.GetUserByEmail(ctx, to); err == nil {
		userID = &user.ID
	} else if !errors.Is(err, authdomain.ErrUserNotFound) {
		s.log.Warn("failed to look up invitee", zap.Error(err))
	}

	s.store(ctx, domain.Notification{
		UserID:        userID,
		Email:         to,
		Kind:          domain.KindInvitationIssued,
		Subject:       subject,
		Body:          fmt.Sprintf("You have been invited as %s on %s.", role, projectName),
		CorrelationID: correlationID,
	})

	err := s.email.SendTemplate(ctx, []string{to}, "invite_member", map[string]interface{}{
		"project_name": projectName,
		"role":         role,
		"invite_url":   inviteURL,
		"expires_at":   expiresAt.Format(time.RFC1123),
	})
	if err != nil {
		s.log.Warn("failed to send invitation email",
			zap.String("correlation_id", correlationID),
			zap.Error(err),
		)
	}
}

// BidAwarded tells the winning bidder their bid was accepted.
func (s *Service) BidAwarded(ctx context.Context, bidderID snowflake.ID, requestTitle string, projectID snowflake.ID, amountCents int64, currency string) {
	ctx, correlationID := correlation.EnsureCorrelationID(ctx)

	bidder, err := s.authSvc.GetUser(ctx, bidderID)
	if err != nil {
		s.log.Warn("failed to look up awarded bidder",
			zap.String("bidder_id", bidderID.String()),
			zap.Error(err),
		)
		return
	}

	amount := fmt.Sprintf("%s %.2f", currency, float64(amountCents)/100)
	s.store(ctx, domain.Notification{
		UserID:        &bidder.ID,
		Email:         bidder.Email,
		Kind:          domain.KindBidAwarded,
		Subject:       "Your bid was accepted",
		Body:          fmt.Sprintf("Your bid of %s on %q was accepted.", amount, requestTitle),
		CorrelationID: correlationID,
	})

	err = s.email.SendTemplate(ctx, []string{bidder.Email}, "bid_awarded", map[string]interface{}{
		"request_title": requestTitle,
		"project_name":  projectID.String(),
		"amount":        amount,
	})
	if err != nil {
		s.log.Warn("failed to send award email",
			zap.String("correlation_id", correlationID),
			zap.Error(err),
		)
	}
}

func (s *Service) store(ctx context.Context, notification domain.Notification) {
	notification.ID = s.genID.Generate()
	notification.CreatedAt = s.clock.Now()
	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		s.log.Warn("failed to store notification",
			zap.String("kind", notification.Kind),
			zap.Error(err),
		)
	}
}
