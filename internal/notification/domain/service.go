package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	ListForUser(ctx context.Context, userID snowflake.ID) ([]NotificationResponse, error)
	MarkRead(ctx context.Context, userID snowflake.ID, notificationID string) error
}

type NotificationResponse struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `json:"created_at"`
}

var (
	ErrNotFound    = errors.New("notification_not_found")
	ErrInvalidUser = errors.New("invalid_user")
)
