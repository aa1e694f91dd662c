package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	CreateRequest(ctx context.Context, userID snowflake.ID, req CreateRequestRequest) (*RequestResponse, error)
	Publish(ctx context.Context, requestID string) (*RequestResponse, error)
	GetRequest(ctx context.Context, requestID string) (*RequestResponse, error)
	ListByProject(ctx context.Context, projectID string) ([]RequestResponse, error)
	SubmitBid(ctx context.Context, userID snowflake.ID, requestID string, req SubmitBidRequest) (*BidResponse, error)
	GetBid(ctx context.Context, bidID string) (*BidResponse, error)
	ListBids(ctx context.Context, requestID string) ([]BidResponse, error)
	Award(ctx context.Context, requestID string, bidID string) (*AwardResponse, error)
	RejectBid(ctx context.Context, bidID string) error
	WithdrawBid(ctx context.Context, userID snowflake.ID, bidID string) error
	CloseExpired(ctx context.Context, now time.Time) (int64, error)
}

// Notifier tells a bidder their bid was accepted. Implementations must
// not block the awarding transaction.
type Notifier interface {
	BidAwarded(ctx context.Context, bidderID snowflake.ID, requestTitle string, projectID snowflake.ID, amountCents int64, currency string)
}

type CreateRequestRequest struct {
	ProjectID       string     `json:"project_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Category        string     `json:"category"`
	BiddingDeadline *time.Time `json:"bidding_deadline"`
}

type SubmitBidRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Message     string `json:"message"`
}

type RequestResponse struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"project_id"`
	CreatedBy       string     `json:"created_by"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Category        string     `json:"category"`
	Status          string     `json:"status"`
	BiddingDeadline *time.Time `json:"bidding_deadline"`
	AwardedBidID    string     `json:"awarded_bid_id,omitempty"`
	BidCount        int64      `json:"bid_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type BidResponse struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id"`
	BidderID    string    `json:"bidder_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Message     string    `json:"message"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type AwardResponse struct {
	RequestID    string `json:"request_id"`
	AwardedBidID string `json:"awarded_bid_id"`
	RejectedBids int64  `json:"rejected_bids"`
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateRequest(ctx context.Context, request ServiceRequest) error
	GetRequest(ctx context.Context, id snowflake.ID) (*ServiceRequest, error)
	GetRequestForUpdate(ctx context.Context, id snowflake.ID) (*ServiceRequest, error)
	UpdateRequestFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
	ListRequestsByProject(ctx context.Context, projectID snowflake.ID) ([]ServiceRequest, error)
	ListExpiredOpenRequests(ctx context.Context, now time.Time) ([]ServiceRequest, error)
	CreateBid(ctx context.Context, bid Bid) error
	GetBid(ctx context.Context, id snowflake.ID) (*Bid, error)
	UpdateBidFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
	ListBidsByRequest(ctx context.Context, requestID snowflake.ID) ([]Bid, error)
	CountBidsByRequest(ctx context.Context, requestID snowflake.ID) (int64, error)
	RejectPendingBids(ctx context.Context, requestID snowflake.ID, exceptBidID snowflake.ID, at time.Time) (int64, error)
}

var (
	ErrRequestNotFound   = errors.New("service_request_not_found")
	ErrBidNotFound       = errors.New("bid_not_found")
	ErrInvalidProject    = errors.New("invalid_project")
	ErrInvalidUser       = errors.New("invalid_user")
	ErrInvalidTitle      = errors.New("invalid_title")
	ErrInvalidCategory   = errors.New("invalid_category")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidDeadline   = errors.New("invalid_deadline")
	ErrNotPublished           = errors.New("request_not_published")
	ErrNotDraft          = errors.New("request_not_draft")
	ErrBiddingClosed     = errors.New("bidding_window_closed")
	ErrAlreadyAwarded    = errors.New("request_already_awarded")
	ErrDuplicateBid      = errors.New("bid_already_submitted")
	ErrTooManyBids       = errors.New("bid_limit_reached")
	ErrBidMismatch       = errors.New("bid_does_not_belong_to_request")
	ErrBidNotPending     = errors.New("bid_not_pending")
	ErrNotBidOwner       = errors.New("not_bid_owner")
)
