package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	authdomain "github.com/timberline-hq/timberline/internal/auth/domain"
	"github.com/timberline-hq/timberline/internal/clock"
	"github.com/timberline-hq/timberline/internal/order/domain"
	projectdomain "github.com/timberline-hq/timberline/internal/project/domain"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Repo        domain.Repository
	ProjectRepo projectdomain.Repository
	AuthSvc     authdomain.Service
	GenID       *snowflake.Node
	Clock       clock.Clock
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        domain.Repository
	projectRepo projectdomain.Repository
	authSvc     authdomain.Service
	genID       *snowflake.Node
	clock       clock.Clock
}

func NewService(p Params) domain.Service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("order.service"),
		repo:        p.Repo,
		projectRepo: p.ProjectRepo,
		authSvc:     p.AuthSvc,
		genID:       p.GenID,
		clock:       p.Clock,
	}
}

func (s *service) Create(ctx context.Context, userID snowflake.ID, req domain.CreateOrderRequest) (*domain.OrderResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if len(req.Items) == 0 {
		return nil, domain.ErrNoItems
	}

	projectID, err := parseID(req.ProjectID, domain.ErrInvalidProject)
	if err != nil {
		return nil, err
	}
	if _, err := s.projectRepo.GetProject(ctx, projectID); err != nil {
		return nil, domain.ErrInvalidProject
	}

	var supplierID *snowflake.ID
	if raw := strings.TrimSpace(req.SupplierID); raw != "" {
		id, err := parseID(raw, domain.ErrInvalidSupplier)
		if err != nil {
			return nil, err
		}
		supplier, err := s.authSvc.GetUser(ctx, id)
		if err != nil {
			return nil, domain.ErrInvalidSupplier
		}
		if supplier.AccountType != authdomain.AccountSupplier {
			return nil, domain.ErrInvalidSupplier
		}
		supplierID = &id
	}

	now := s.clock.Now()
	order := domain.Order{
		ID:         s.genID.Generate(),
		ProjectID:  projectID,
		CreatedBy:  userID,
		SupplierID: supplierID,
		Status:     domain.StatusDraft,
		Reference:  strings.TrimSpace(req.Reference),
		Notes:      strings.TrimSpace(req.Notes),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		name := strings.TrimSpace(item.Name)
		if name == "" || item.Quantity <= 0 || item.UnitPriceCents < 0 {
			return nil, domain.ErrInvalidItem
		}
		currency := strings.ToUpper(strings.TrimSpace(item.Currency))
		if currency == "" {
			currency = "EUR"
		}
		unit := strings.TrimSpace(item.Unit)
		if unit == "" {
			unit = "pcs"
		}
		items = append(items, domain.OrderItem{
			ID:             s.genID.Generate(),
			OrderID:        order.ID,
			Name:           name,
			Quantity:       item.Quantity,
			Unit:           unit,
			UnitPriceCents: item.UnitPriceCents,
			Currency:       currency,
			CreatedAt:      now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			return err
		}
		return repo.CreateItems(ctx, items)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("project_id", projectID.String()),
		zap.Int("items", len(items)),
	)
	return toResponse(&order, items), nil
}

func (s *service) Get(ctx context.Context, orderID string) (*domain.OrderResponse, error) {
	id, err := parseID(orderID, domain.ErrNotFound)
	if err != nil {
		return nil, err
	}
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, []snowflake.ID{id})
	if err != nil {
		return nil, err
	}
	return toResponse(order, items), nil
}

func (s *service) ListByProject(ctx context.Context, projectID string) ([]domain.OrderResponse, error) {
	id, err := parseID(projectID, domain.ErrInvalidProject)
	if err != nil {
		return nil, err
	}

	orders, err := s.repo.ListByProject(ctx, id)
	if err != nil {
		return nil, err
	}

	orderIDs := make([]snowflake.ID, 0, len(orders))
	for _, order := range orders {
		orderIDs = append(orderIDs, order.ID)
	}
	items, err := s.repo.ListItems(ctx, orderIDs)
	if err != nil {
		return nil, err
	}

	itemsByOrder := make(map[snowflake.ID][]domain.OrderItem, len(orders))
	for _, item := range items {
		itemsByOrder[item.OrderID] = append(itemsByOrder[item.OrderID], item)
	}

	resp := make([]domain.OrderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, *toResponse(&orders[i], itemsByOrder[orders[i].ID]))
	}
	return resp, nil
}

func (s *service) UpdateStatus(ctx context.Context, orderID string, status string) (*domain.OrderResponse, error) {
	id, err := parseID(orderID, domain.ErrNotFound)
	if err != nil {
		return nil, err
	}

	status = strings.TrimSpace(status)
	switch status {
	case domain.StatusDraft, domain.StatusPlaced, domain.StatusConfirmed,
		domain.StatusShipped, domain.StatusDelivered, domain.StatusCancelled:
	default:
		return nil, domain.ErrInvalidStatus
	}

	var updated *domain.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status == status {
			updated = order
			return nil
		}
		if !domain.CanTransition(order.Status, status) {
			return domain.ErrInvalidTransition
		}

		now := s.clock.Now()
		if err := repo.UpdateFields(ctx, id, map[string]any{
			"status":     status,
			"updated_at": now,
		}); err != nil {
			return err
		}
		order.Status = status
		order.UpdatedAt = now
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListItems(ctx, []snowflake.ID{id})
	if err != nil {
		return nil, err
	}
	return toResponse(updated, items), nil
}

func (s *service) Cancel(ctx context.Context, orderID string) (*domain.OrderResponse, error) {
	resp, err := s.UpdateStatus(ctx, orderID, domain.StatusCancelled)
	if errors.Is(err, domain.ErrInvalidTransition) {
		return nil, domain.ErrInvalidTransition
	}
	return resp, err
}

func toResponse(order *domain.Order, items []domain.OrderItem) *domain.OrderResponse {
	itemResponses := make([]domain.OrderItemResponse, 0, len(items))
	var total int64
	for _, item := range items {
		itemResponses = append(itemResponses, domain.OrderItemResponse{
			ID:             item.ID.String(),
			Name:           item.Name,
			Quantity:       item.Quantity,
			Unit:           item.Unit,
			UnitPriceCents: item.UnitPriceCents,
			Currency:       item.Currency,
		})
		total += int64(float64(item.UnitPriceCents) * item.Quantity)
	}

	resp := &domain.OrderResponse{
		ID:         order.ID.String(),
		ProjectID:  order.ProjectID.String(),
		CreatedBy:  order.CreatedBy.String(),
		Status:     order.Status,
		Reference:  order.Reference,
		Notes:      order.Notes,
		TotalCents: total,
		Items:      itemResponses,
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
	}
	if order.SupplierID != nil {
		resp.SupplierID = order.SupplierID.String()
	}
	return resp
}

func parseID(raw string, onInvalid error) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, onInvalid
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, onInvalid
	}
	return id, nil
}
