// Package domain contains persistence models for the bidding service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service request statuses. Draft requests are visible to the project
// team only; publishing opens them for bids.
const (
	RequestDraft     = "draft"
	RequestPublished = "published"
	RequestAwarded   = "awarded"
	RequestClosed    = "closed"
)

// Bid statuses. A pending bid leaves that state exactly once: accepted,
// rejected, or withdrawn. At most one bid per request may be accepted.
const (
	BidPending   = "pending"
	BidAccepted  = "accepted"
	BidRejected  = "rejected"
	BidWithdrawn = "withdrawn"
)

// ServiceRequest is a scoped piece of work a client puts out for bids.
type ServiceRequest struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	ProjectID       snowflake.ID  `gorm:"not null;index" json:"project_id"`
	CreatedBy       snowflake.ID  `gorm:"column:created_by;not null" json:"created_by"`
	Title           string        `gorm:"type:text;not null" json:"title"`
	Description     string        `gorm:"type:text" json:"description"`
	Category        string        `gorm:"type:text;not null" json:"category"`
	Status          string        `gorm:"type:text;not null;default:draft;index" json:"status"`
	BiddingDeadline *time.Time    `gorm:"index" json:"bidding_deadline"`
	AwardedBidID    *snowflake.ID `gorm:"column:awarded_bid_id" json:"awarded_bid_id"`
	CreatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ServiceRequest) TableName() string { return "service_requests" }

// Bid is a contractor's offer on a service request. One bid per bidder
// per request.
type Bid struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	RequestID   snowflake.ID `gorm:"not null;index;uniqueIndex:ux_bids_request_bidder,priority:1" json:"request_id"`
	BidderID    snowflake.ID `gorm:"column:bidder_id;not null;uniqueIndex:ux_bids_request_bidder,priority:2" json:"bidder_id"`
	AmountCents int64        `gorm:"not null" json:"amount_cents"`
	Currency    string       `gorm:"type:text;not null;default:EUR" json:"currency"`
	Message     string       `gorm:"type:text" json:"message"`
	Status      string       `gorm:"type:text;not null;default:pending;index" json:"status"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Bid) TableName() string { return "bids" }
