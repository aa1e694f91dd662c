// Package domain contains persistence models for the material order service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Order statuses. Cancellation is allowed until the order ships.
const (
	StatusDraft     = "draft"
	StatusPlaced    = "placed"
	StatusConfirmed = "confirmed"
	StatusShipped   = "shipped"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

// Order is a materials order on a project, optionally addressed to a
// supplier account.
type Order struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	ProjectID  snowflake.ID  `gorm:"not null;index" json:"project_id"`
	CreatedBy  snowflake.ID  `gorm:"column:created_by;not null" json:"created_by"`
	SupplierID *snowflake.ID `gorm:"column:supplier_id;index" json:"supplier_id"`
	Status     string        `gorm:"type:text;not null;default:draft;index" json:"status"`
	Reference  string        `gorm:"type:text" json:"reference"`
	Notes      string        `gorm:"type:text" json:"notes"`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// OrderItem is a single line on an order.
type OrderItem struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	OrderID        snowflake.ID `gorm:"not null;index" json:"order_id"`
	Name           string       `gorm:"type:text;not null" json:"name"`
	Quantity       float64      `gorm:"not null" json:"quantity"`
	Unit           string       `gorm:"type:text;not null" json:"unit"`
	UnitPriceCents int64        `gorm:"not null" json:"unit_price_cents"`
	Currency       string       `gorm:"type:text;not null;default:EUR" json:"currency"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (OrderItem) TableName() string { return "order_items" }

// CanTransition reports whether an order may move from one status to
// another.
func CanTransition(from, to string) bool {
	switch from {
	case StatusDraft:
		return to == StatusPlaced || to == StatusCancelled
	case StatusPlaced:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusShipped || to == StatusCancelled
	case StatusShipped:
		return to == StatusDelivered
	}
	return false
}
