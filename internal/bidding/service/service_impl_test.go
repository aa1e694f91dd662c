package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/timberline-hq/timberline/internal/bidding/domain"
	biddingrepo "github.com/timberline-hq/timberline/internal/bidding/repository"
	"github.com/timberline-hq/timberline/internal/clock"
	"github.com/timberline-hq/timberline/internal/config"
	projectdomain "github.com/timberline-hq/timberline/internal/project/domain"
	projectrepo "github.com/timberline-hq/timberline/internal/project/repository"
)

var testStart = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type biddingHarness struct {
	svc   domain.Service
	db    *gorm.DB
	clock *clock.FakeClock
	node  *snowflake.Node
}

func newBiddingHarness(t *testing.T, workflow config.WorkflowConfig) *biddingHarness {
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

	if err := db.AutoMigrate(
		&projectdomain.Project{},
		&projectdomain.ProjectMember{},
		&domain.ServiceRequest{},
		&domain.Bid{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fake := clock.NewFakeClock(testStart)

	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		Repo:        biddingrepo.NewRepository(db),
		ProjectRepo: projectrepo.NewRepository(db),
		GenID:       node,
		Clock:       fake,
		Holder:      config.NewStaticWorkflowConfigHolder(workflow),
	})

	return &biddingHarness{svc: svc, db: db, clock: fake, node: node}
}

func (h *biddingHarness) seedProject(t *testing.T) (snowflake.ID, snowflake.ID) {
	t.Helper()

	ownerID := h.node.Generate()
	project := projectdomain.Project{
		ID:      h.node.Generate(),
		OwnerID: ownerID,
		Name:    "Barn Conversion",
		Slug:    fmt.Sprintf("barn-conversion-%s", h.node.Generate()),
		Status:  projectdomain.StatusInProgress,
	}
	if err := h.db.Create(&project).Error; err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return project.ID, ownerID
}

// openRequest creates and publishes a request, returning its ID.
func (h *biddingHarness) openRequest(t *testing.T, projectID, ownerID snowflake.ID) string {
	t.Helper()

	created, err := h.svc.CreateRequest(context.Background(), ownerID, domain.CreateRequestRequest{
		ProjectID: projectID.String(),
		Title:     "Roof framing",
		Category:  "carpentry",
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if _, err := h.svc.Publish(context.Background(), created.ID); err != nil {
		t.Fatalf("publish request: %v", err)
	}
	return created.ID
}

func (h *biddingHarness) submitBid(t *testing.T, bidderID snowflake.ID, requestID string, amount int64) *domain.BidResponse {
	t.Helper()
	bid, err := h.svc.SubmitBid(context.Background(), bidderID, requestID, domain.SubmitBidRequest{
		AmountCents: amount,
	})
	if err != nil {
		t.Fatalf("submit bid: %v", err)
	}
	return bid
}

func TestPublishDefaultsDeadlineToWindow(t *testing.T) {
	h := newBiddingHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)

	created, err := h.svc.CreateRequest(context.Background(), ownerID, domain.CreateRequestRequest{
		ProjectID: projectID.String(),
		Title:     "Roof framing",
		Category:  "carpentry",
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if created.Status != domain.RequestDraft {
		t.Fatalf("expected draft, got %s", created.Status)
	}

	published, err := h.svc.Publish(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if published.Status != domain.RequestPublished {
		t.Fatalf("expected open, got %s", published.Status)
	}
	wantDeadline := testStart.Add(14 * 24 * time.Hour)
	if published.BiddingDeadline == nil || !published.BiddingDeadline.Equal(wantDeadline) {
		t.Fatalf("expected deadline %v, got %v", wantDeadline, published.BiddingDeadline)
	}

	// Publishing twice is a conflict.
	if _, err := h.svc.Publish(context.Background(), created.ID); err != domain.ErrNotDraft {
		t.Fatalf("expected ErrNotDraft on second publish, got %v", err)
	}
}

func TestSubmitBidOnDraftFails(t *testing.T) {
	h := newBiddingHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)

	created, err := h.svc.CreateRequest(context.Background(), ownerID, domain.CreateRequestRequest{
		ProjectID: projectID.String(),
		Title:     "Drainage",
		Category:  "groundwork",
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	bidderID := h.node.Generate()
	_, err = h.svc.SubmitBid(context.Background(), bidderID, created.ID, domain.SubmitBidRequest{AmountCents: 10_000})
	if err != domain.ErrNotPublished {
		t.Fatalf("expected ErrNotPublished, got %v", err)
	}
}

func TestSubmitBidAfterDeadlineFails(t *testing.T) {
	h := newBiddingHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)
	requestID := h.openRequest(t, projectID, ownerID)

	h.clock.Advance(15 * 24 * time.Hour)

	bidderID := h.node.Generate()
	_, err := h.svc.SubmitBid(context.Background(), bidderID, requestID, domain.SubmitBidRequest{AmountCents: 10_000})
	if err != domain.ErrBiddingClosed {
		t.Fatalf("expected ErrBiddingClosed, got %v", err)
	}
}

func TestSubmitBidDuplicateBidder(t *testing.T) {
	h := newBiddingHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)
	requestID := h.openRequest(t, projectID, ownerID)

	bidderID := h.node.Generate()
	h.submitBid(t, bidderID, requestID, 250_000)

	_, err := h.svc.SubmitBid(context.Background(), bidderID, requestID, domain.SubmitBidRequest{AmountCents: 240_000})
	if err != domain.ErrDuplicateBid {
		t.Fatalf("expected ErrDuplicateBid, got %v", err)
	}
}

func TestSubmitBidLimit(t *testing.T) {
	workflow := config.DefaultWorkflowConfig()
	workflow.MaxBidsPerRequest = 2
	h := newBiddingHarness(t, workflow)
	projectID, ownerID := h.seedProject(t)
	requestID := h.openRequest(t, projectID, ownerID)

	h.submitBid(t, h.node.Generate(), requestID, 100_000)
	h.submitBid(t, h.node.Generate(), requestID, 110_000)

	_, err := h.svc.SubmitBid(context.Background(), h.node.Generate(), requestID, domain.SubmitBidRequest{AmountCents: 120_000})
	if err != domain.ErrTooManyBids {
		t.Fatalf("expected ErrTooManyBids, got %v", err)
	}
}

func TestAwardRejectsOtherPendingBids(t *testing.T) {
	h := newBiddingHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)
	requestID := h.openRequest(t, projectID, ownerID)

	winner := h.submitBid(t, h.node.Generate(), requestID, 200_000)
	loserA := h.submitBid(t, h.node.Generate(), requestID, 210_000)
	loserB := h.submitBid(t, h.node.Generate(), requestID, 190_000)

	award, err := h.svc.Award(context.Background(), requestID, winner.ID)
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if award.AwardedBidID != winner.ID {
		t.Fatalf("expected awarded bid %s, got %s", winner.ID, award.AwardedBidID)
	}
	if award.RejectedBids != 2 {
		t.Fatalf("expected 2 rejected bids, got %d", award.RejectedBids)
	}

	request, err := h.svc.GetRequest(context.Background(), requestID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if request.Status != domain.RequestAwarded || request.AwardedBidID != winner.ID {
		t.Fatalf("unexpected request after award: %+v", request)
	}

	for _, loser := range []string{loserA.ID, loserB.ID} {
		bid, err := h.svc.GetBid(context.Background(), loser)
		if err != nil {
			t.Fatalf("get bid: %v", err)
		}
		if bid.Status != domain.BidRejected {
			t.Fatalf("expected losing bid rejected, got %s", bid.Status)
		}
	}

	// A second award on the same request is a conflict regardless of bid.
	if _, err := h.svc.Award(context.Background(), requestID, loserA.ID); err != domain.ErrAlreadyAwarded {
		t.Fatalf("expected ErrAlreadyAwarded, got %v", err)
	}
}

func TestAwardBidFromOtherRequest(t *testing.T) {
	h := newBiddingHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)
	requestA := h.openRequest(t, projectID, ownerID)
	requestB := h.openRequest(t, projectID, ownerID)

	stray := h.submitBid(t, h.node.Generate(), requestB, 90_000)

	_, err := h.svc.Award(context.Background(), requestA, stray.ID)
	if err != domain.ErrBidMismatch {
		t.Fatalf("expected ErrBidMismatch, got %v", err)
	}
}

func TestWithdrawBidOwnership(t *testing.T) {
	h := newBiddingHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)
	requestID := h.openRequest(t, projectID, ownerID)

	bidderID := h.node.Generate()
	bid := h.submitBid(t, bidderID, requestID, 150_000)

	strangerID := h.node.Generate()
	if err := h.svc.WithdrawBid(context.Background(), strangerID, bid.ID); err != domain.ErrNotBidOwner {
		t.Fatalf("expected ErrNotBidOwner, got %v", err)
	}

	if err := h.svc.WithdrawBid(context.Background(), bidderID, bid.ID); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	withdrawn, err := h.svc.GetBid(context.Background(), bid.ID)
	if err != nil {
		t.Fatalf("get bid: %v", err)
	}
	if withdrawn.Status != domain.BidWithdrawn {
		t.Fatalf("expected withdrawn, got %s", withdrawn.Status)
	}

	// A withdrawn bid cannot be withdrawn again or awarded.
	if err := h.svc.WithdrawBid(context.Background(), bidderID, bid.ID); err != domain.ErrBidNotPending {
		t.Fatalf("expected ErrBidNotPending, got %v", err)
	}
	if _, err := h.svc.Award(context.Background(), requestID, bid.ID); err != domain.ErrBidNotPending {
		t.Fatalf("expected ErrBidNotPending on award, got %v", err)
	}
}

func TestCloseExpiredRejectsPendingBids(t *testing.T) {
	h := newBiddingHarness(t, config.DefaultWorkflowConfig())
	projectID, ownerID := h.seedProject(t)
	expiredReq := h.openRequest(t, projectID, ownerID)
	bid := h.submitBid(t, h.node.Generate(), expiredReq, 80_000)

	h.clock.Advance(15 * 24 * time.Hour)
	freshReq := h.openRequest(t, projectID, ownerID)

	closed, err := h.svc.CloseExpired(context.Background(), h.clock.Now())
	if err != nil {
		t.Fatalf("close expired: %v", err)
	}
	if closed != 1 {
		t.Fatalf("expected 1 closed request, got %d", closed)
	}

	request, err := h.svc.GetRequest(context.Background(), expiredReq)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if request.Status != domain.RequestClosed {
		t.Fatalf("expected closed, got %s", request.Status)
	}

	rejected, err := h.svc.GetBid(context.Background(), bid.ID)
	if err != nil {
		t.Fatalf("get bid: %v", err)
	}
	if rejected.Status != domain.BidRejected {
		t.Fatalf("expected rejected after close, got %s", rejected.Status)
	}

	fresh, err := h.svc.GetRequest(context.Background(), freshReq)
	if err != nil {
		t.Fatalf("get fresh request: %v", err)
	}
	if fresh.Status != domain.RequestPublished {
		t.Fatalf("expected fresh request untouched, got %s", fresh.Status)
	}
}
