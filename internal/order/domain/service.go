package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateOrderRequest) (*OrderResponse, error)
	Get(ctx context.Context, orderID string) (*OrderResponse, error)
	ListByProject(ctx context.Context, projectID string) ([]OrderResponse, error)
	UpdateStatus(ctx context.Context, orderID string, status string) (*OrderResponse, error)
	Cancel(ctx context.Context, orderID string) (*OrderResponse, error)
}

type CreateOrderRequest struct {
	ProjectID  string             `json:"project_id"`
	SupplierID string             `json:"supplier_id"`
	Reference  string             `json:"reference"`
	Notes      string             `json:"notes"`
	Items      []OrderItemRequest `json:"items"`
}

type OrderItemRequest struct {
	Name           string  `json:"name"`
	Quantity       float64 `json:"quantity"`
	Unit           string  `json:"unit"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	Currency       string  `json:"currency"`
}

type OrderResponse struct {
	ID         string              `json:"id"`
	ProjectID  string              `json:"project_id"`
	CreatedBy  string              `json:"created_by"`
	SupplierID string              `json:"supplier_id,omitempty"`
	Status     string              `json:"status"`
	Reference  string              `json:"reference"`
	Notes      string              `json:"notes"`
	TotalCents int64               `json:"total_cents"`
	Items      []OrderItemResponse `json:"items"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

type OrderItemResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Quantity       float64 `json:"quantity"`
	Unit           string  `json:"unit"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	Currency       string  `json:"currency"`
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order Order) error
	CreateItems(ctx context.Context, items []OrderItem) error
	GetOrder(ctx context.Context, id snowflake.ID) (*Order, error)
	GetOrderForUpdate(ctx context.Context, id snowflake.ID) (*Order, error)
	UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
	ListByProject(ctx context.Context, projectID snowflake.ID) ([]Order, error)
	ListItems(ctx context.Context, orderIDs []snowflake.ID) ([]OrderItem, error)
}

var (
	ErrNotFound          = errors.New("order_not_found")
	ErrInvalidProject    = errors.New("invalid_project")
	ErrInvalidUser       = errors.New("invalid_user")
	ErrInvalidSupplier   = errors.New("invalid_supplier")
	ErrNoItems           = errors.New("order_has_no_items")
	ErrInvalidItem       = errors.New("invalid_order_item")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidTransition = errors.New("invalid_status_transition")
)
