package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	authdomain "github.com/timberline-hq/timberline/internal/auth/domain"
	"github.com/timberline-hq/timberline/internal/clock"
	"github.com/timberline-hq/timberline/internal/order/domain"
	orderrepo "github.com/timberline-hq/timberline/internal/order/repository"
	projectdomain "github.com/timberline-hq/timberline/internal/project/domain"
	projectrepo "github.com/timberline-hq/timberline/internal/project/repository"
)

var testStart = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// userStub serves supplier lookups from a fixed map.
type userStub struct {
	users map[snowflake.ID]*authdomain.User
}

func (u *userStub) CreateUser(ctx context.Context, req authdomain.CreateUserRequest) (*authdomain.User, error) {
	return nil, authdomain.ErrUserNotFound
}

func (u *userStub) Login(ctx context.Context, req authdomain.LoginRequest) (*authdomain.LoginResult, error) {
	return nil, authdomain.ErrInvalidCredentials
}

func (u *userStub) Logout(ctx context.Context, rawToken string) error { return nil }

func (u *userStub) Authenticate(ctx context.Context, rawToken string) (*authdomain.User, error) {
	return nil, authdomain.ErrInvalidCredentials
}

func (u *userStub) ChangePassword(ctx context.Context, userID snowflake.ID, newPassword string) error {
	return nil
}

func (u *userStub) GetUser(ctx context.Context, userID snowflake.ID) (*authdomain.User, error) {
	user, ok := u.users[userID]
	if !ok {
		return nil, authdomain.ErrUserNotFound
	}
	return user, nil
}

func (u *userStub) GetUserByEmail(ctx context.Context, email string) (*authdomain.User, error) {
	return nil, authdomain.ErrUserNotFound
}

type orderHarness struct {
	svc  domain.Service
	db   *gorm.DB
	node *snowflake.Node
	auth *userStub
}

func newOrderHarness(t *testing.T) *orderHarness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
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

	if err := db.AutoMigrate(
		&projectdomain.Project{},
		&domain.Order{},
		&domain.OrderItem{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	auth := &userStub{users: map[snowflake.ID]*authdomain.User{}}

	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		Repo:        orderrepo.NewRepository(db),
		ProjectRepo: projectrepo.NewRepository(db),
		AuthSvc:     auth,
		GenID:       node,
		Clock:       clock.NewFakeClock(testStart),
	})

	return &orderHarness{svc: svc, db: db, node: node, auth: auth}
}

func (h *orderHarness) seedProject(t *testing.T) (snowflake.ID, snowflake.ID) {
	t.Helper()

	ownerID := h.node.Generate()
	project := projectdomain.Project{
		ID:      h.node.Generate(),
		OwnerID: ownerID,
		Name:    "Summer House",
		Slug:    fmt.Sprintf("summer-house-%s", h.node.Generate()),
		Status:  projectdomain.StatusInProgress,
	}
	if err := h.db.Create(&project).Error; err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return project.ID, ownerID
}

func (h *orderHarness) seedSupplier(t *testing.T) snowflake.ID {
	t.Helper()
	id := h.node.Generate()
	h.auth.users[id] = &authdomain.User{
		ID:          id,
		Email:       fmt.Sprintf("supplier-%s@example.com", id),
		AccountType: authdomain.AccountSupplier,
	}
	return id
}

func TestCreateOrderTotalsItems(t *testing.T) {
	h := newOrderHarness(t)
	projectID, ownerID := h.seedProject(t)
	supplierID := h.seedSupplier(t)

	order, err := h.svc.Create(context.Background(), ownerID, domain.CreateOrderRequest{
		ProjectID:  projectID.String(),
		SupplierID: supplierID.String(),
		Reference:  "PO-2031",
		Items: []domain.OrderItemRequest{
			{Name: "Glulam beam 6m", Quantity: 4, Unit: "pcs", UnitPriceCents: 18_500},
			{Name: "Concrete C25/30", Quantity: 2.5, Unit: "m3", UnitPriceCents: 11_000},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.Status != domain.StatusDraft {
		t.Fatalf("expected draft, got %s", order.Status)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}
	want := int64(4*18_500) + int64(2.5*11_000)
	if order.TotalCents != want {
		t.Fatalf("expected total %d, got %d", want, order.TotalCents)
	}
	if order.SupplierID != supplierID.String() {
		t.Fatalf("expected supplier %s, got %s", supplierID, order.SupplierID)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	h := newOrderHarness(t)
	projectID, ownerID := h.seedProject(t)

	_, err := h.svc.Create(context.Background(), ownerID, domain.CreateOrderRequest{
		ProjectID: projectID.String(),
	})
	if err != domain.ErrNoItems {
		t.Fatalf("expected ErrNoItems, got %v", err)
	}

	_, err = h.svc.Create(context.Background(), ownerID, domain.CreateOrderRequest{
		ProjectID: projectID.String(),
		Items:     []domain.OrderItemRequest{{Name: "Rebar", Quantity: -1, UnitPriceCents: 100}},
	})
	if err != domain.ErrInvalidItem {
		t.Fatalf("expected ErrInvalidItem, got %v", err)
	}

	// A client account cannot be named as supplier.
	clientID := h.node.Generate()
	h.auth.users[clientID] = &authdomain.User{ID: clientID, AccountType: authdomain.AccountClient}
	_, err = h.svc.Create(context.Background(), ownerID, domain.CreateOrderRequest{
		ProjectID:  projectID.String(),
		SupplierID: clientID.String(),
		Items:      []domain.OrderItemRequest{{Name: "Rebar", Quantity: 10, UnitPriceCents: 100}},
	})
	if err != domain.ErrInvalidSupplier {
		t.Fatalf("expected ErrInvalidSupplier, got %v", err)
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	h := newOrderHarness(t)
	projectID, ownerID := h.seedProject(t)

	order, err := h.svc.Create(context.Background(), ownerID, domain.CreateOrderRequest{
		ProjectID: projectID.String(),
		Items:     []domain.OrderItemRequest{{Name: "Bricks", Quantity: 500, UnitPriceCents: 80}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// draft cannot skip to shipped.
	if _, err := h.svc.UpdateStatus(context.Background(), order.ID, domain.StatusShipped); err != domain.ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	for _, status := range []string{domain.StatusPlaced, domain.StatusConfirmed, domain.StatusShipped, domain.StatusDelivered} {
		updated, err := h.svc.UpdateStatus(context.Background(), order.ID, status)
		if err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
		if updated.Status != status {
			t.Fatalf("expected %s, got %s", status, updated.Status)
		}
	}

	// Delivered is terminal.
	if _, err := h.svc.UpdateStatus(context.Background(), order.ID, domain.StatusPlaced); err != domain.ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition out of delivered, got %v", err)
	}
}

func TestCancelUntilShipped(t *testing.T) {
	h := newOrderHarness(t)
	projectID, ownerID := h.seedProject(t)

	order, err := h.svc.Create(context.Background(), ownerID, domain.CreateOrderRequest{
		ProjectID: projectID.String(),
		Items:     []domain.OrderItemRequest{{Name: "Roof tiles", Quantity: 300, UnitPriceCents: 220}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, status := range []string{domain.StatusPlaced, domain.StatusConfirmed, domain.StatusShipped} {
		if _, err := h.svc.UpdateStatus(context.Background(), order.ID, status); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	// Once shipped, cancellation is off the table.
	if _, err := h.svc.Cancel(context.Background(), order.ID); err != domain.ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	second, err := h.svc.Create(context.Background(), ownerID, domain.CreateOrderRequest{
		ProjectID: projectID.String(),
		Items:     []domain.OrderItemRequest{{Name: "Roof tiles", Quantity: 300, UnitPriceCents: 220}},
	})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if _, err := h.svc.UpdateStatus(context.Background(), second.ID, domain.StatusPlaced); err != nil {
		t.Fatalf("place second: %v", err)
	}
	cancelled, err := h.svc.Cancel(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
}
