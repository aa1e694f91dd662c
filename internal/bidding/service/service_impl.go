package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/timberline-hq/timberline/internal/audit/domain"
	"github.com/timberline-hq/timberline/internal/bidding/domain"
	"github.com/timberline-hq/timberline/internal/clock"
	"github.com/timberline-hq/timberline/internal/config"
	"github.com/timberline-hq/timberline/internal/observability/metrics"
	projectdomain "github.com/timberline-hq/timberline/internal/project/domain"
	"github.com/timberline-hq/timberline/pkg/db"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Repo        domain.Repository
	ProjectRepo projectdomain.Repository
	GenID       *snowflake.Node
	Clock       clock.Clock
	Holder      *config.WorkflowConfigHolder
	Metrics     *metrics.Metrics    `optional:"true"`
	AuditSvc    auditdomain.Service `optional:"true"`
	Notifier    domain.Notifier     `optional:"true"`
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        domain.Repository
	projectRepo projectdomain.Repository
	genID       *snowflake.Node
	clock       clock.Clock
	holder      *config.WorkflowConfigHolder
	metrics     *metrics.Metrics
	auditSvc    auditdomain.Service
	notifier    domain.Notifier
}

func NewService(p Params) domain.Service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("bidding.service"),
		repo:        p.Repo,
		projectRepo: p.ProjectRepo,
		genID:       p.GenID,
		clock:       p.Clock,
		holder:      p.Holder,
		metrics:     p.Metrics,
		auditSvc:    p.AuditSvc,
		notifier:    p.Notifier,
	}
}

func (s *service) CreateRequest(ctx context.Context, userID snowflake.ID, req domain.CreateRequestRequest) (*domain.RequestResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, domain.ErrInvalidTitle
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return nil, domain.ErrInvalidCategory
	}

	projectID, err := parseID(req.ProjectID, domain.ErrInvalidProject)
	if err != nil {
		return nil, err
	}
	if _, err := s.projectRepo.GetProject(ctx, projectID); err != nil {
		return nil, domain.ErrInvalidProject
	}

	now := s.clock.Now()
	if req.BiddingDeadline != nil && !req.BiddingDeadline.After(now) {
		return nil, domain.ErrInvalidDeadline
	}

	request := domain.ServiceRequest{
		ID:              s.genID.Generate(),
		ProjectID:       projectID,
		CreatedBy:       userID,
		Title:           title,
		Description:     strings.TrimSpace(req.Description),
		Category:        category,
		Status:          domain.RequestDraft,
		BiddingDeadline: req.BiddingDeadline,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.CreateRequest(ctx, request); err != nil {
		return nil, err
	}

	return s.toRequestResponse(ctx, &request), nil
}

// Publish opens a draft for bids. A missing deadline defaults to the
// configured bidding window from now.
func (s *service) Publish(ctx context.Context, requestID string) (*domain.RequestResponse, error) {
	id, err := parseID(requestID, domain.ErrRequestNotFound)
	if err != nil {
		return nil, err
	}

	var published *domain.ServiceRequest
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		request, err := repo.GetRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if request.Status != domain.RequestDraft {
			return domain.ErrNotDraft
		}

		now := s.clock.Now()
		deadline := request.BiddingDeadline
		if deadline == nil {
			d := now.Add(s.holder.Current().BiddingWindow())
			deadline = &d
		}

		if err := repo.UpdateRequestFields(ctx, id, map[string]any{
			"status":           domain.RequestPublished,
			"bidding_deadline": *deadline,
			"updated_at":       now,
		}); err != nil {
			return err
		}
		request.Status = domain.RequestPublished
		request.BiddingDeadline = deadline
		request.UpdatedAt = now
		published = request
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("service request published",
		zap.String("request_id", id.String()),
		zap.Timep("bidding_deadline", published.BiddingDeadline),
	)
	return s.toRequestResponse(ctx, published), nil
}

func (s *service) GetRequest(ctx context.Context, requestID string) (*domain.RequestResponse, error) {
	id, err := parseID(requestID, domain.ErrRequestNotFound)
	if err != nil {
		return nil, err
	}
	request, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toRequestResponse(ctx, request), nil
}

func (s *service) ListByProject(ctx context.Context, projectID string) ([]domain.RequestResponse, error) {
	id, err := parseID(projectID, domain.ErrInvalidProject)
	if err != nil {
		return nil, err
	}
	requests, err := s.repo.ListRequestsByProject(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.RequestResponse, 0, len(requests))
	for i := range requests {
		resp = append(resp, *s.toRequestResponse(ctx, &requests[i]))
	}
	return resp, nil
}

func (s *service) SubmitBid(ctx context.Context, userID snowflake.ID, requestID string, req domain.SubmitBidRequest) (*domain.BidResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if req.AmountCents <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "EUR"
	}

	id, err := parseID(requestID, domain.ErrRequestNotFound)
	if err != nil {
		return nil, err
	}

	var bid domain.Bid
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		request, err := repo.GetRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if request.Status != domain.RequestPublished {
			return domain.ErrNotPublished
		}

		now := s.clock.Now()
		if request.BiddingDeadline != nil && !now.Before(*request.BiddingDeadline) {
			return domain.ErrBiddingClosed
		}

		workflow := s.holder.Current()
		count, err := repo.CountBidsByRequest(ctx, id)
		if err != nil {
			return err
		}
		if workflow.MaxBidsPerRequest > 0 && count >= int64(workflow.MaxBidsPerRequest) {
			return domain.ErrTooManyBids
		}

		bid = domain.Bid{
			ID:          s.genID.Generate(),
			RequestID:   id,
			BidderID:    userID,
			AmountCents: req.AmountCents,
			Currency:    currency,
			Message:     strings.TrimSpace(req.Message),
			Status:      domain.BidPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return repo.CreateBid(ctx, bid)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateBid
		}
		return nil, err
	}

	s.log.Info("bid submitted",
		zap.String("request_id", id.String()),
		zap.String("bid_id", bid.ID.String()),
		zap.Int64("amount_cents", bid.AmountCents),
	)
	return toBidResponse(&bid), nil
}

func (s *service) GetBid(ctx context.Context, bidID string) (*domain.BidResponse, error) {
	id, err := parseID(bidID, domain.ErrBidNotFound)
	if err != nil {
		return nil, err
	}
	bid, err := s.repo.GetBid(ctx, id)
	if err != nil {
		return nil, err
	}
	return toBidResponse(bid), nil
}

func (s *service) ListBids(ctx context.Context, requestID string) ([]domain.BidResponse, error) {
	id, err := parseID(requestID, domain.ErrRequestNotFound)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetRequest(ctx, id); err != nil {
		return nil, err
	}

	bids, err := s.repo.ListBidsByRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.BidResponse, 0, len(bids))
	for i := range bids {
		resp = append(resp, *toBidResponse(&bids[i]))
	}
	return resp, nil
}

// Award picks the winning bid. The request row is locked first so two
// concurrent awards serialize; the loser sees ErrAlreadyAwarded. Every
// other pending bid on the request is rejected in the same transaction.
func (s *service) Award(ctx context.Context, requestID string, bidID string) (*domain.AwardResponse, error) {
	reqID, err := parseID(requestID, domain.ErrRequestNotFound)
	if err != nil {
		return nil, err
	}
	winningBidID, err := parseID(bidID, domain.ErrBidNotFound)
	if err != nil {
		return nil, err
	}

	var (
		winner       *domain.Bid
		request      *domain.ServiceRequest
		rejectedBids int64
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		req, err := repo.GetRequestForUpdate(ctx, reqID)
		if err != nil {
			return err
		}
		if req.AwardedBidID != nil || req.Status == domain.RequestAwarded {
			return domain.ErrAlreadyAwarded
		}
		if req.Status != domain.RequestPublished {
			return domain.ErrNotPublished
		}

		bid, err := repo.GetBid(ctx, winningBidID)
		if err != nil {
			return err
		}
		if bid.RequestID != reqID {
			return domain.ErrBidMismatch
		}
		if bid.Status != domain.BidPending {
			return domain.ErrBidNotPending
		}

		now := s.clock.Now()
		if err := repo.UpdateBidFields(ctx, winningBidID, map[string]any{
			"status":     domain.BidAccepted,
			"updated_at": now,
		}); err != nil {
			return err
		}

		rejected, err := repo.RejectPendingBids(ctx, reqID, winningBidID, now)
		if err != nil {
			return err
		}

		if err := repo.UpdateRequestFields(ctx, reqID, map[string]any{
			"status":         domain.RequestAwarded,
			"awarded_bid_id": winningBidID,
			"updated_at":     now,
		}); err != nil {
			return err
		}

		bid.Status = domain.BidAccepted
		winner = bid
		request = req
		rejectedBids = rejected
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordBidAwarded(ctx)
	}
	s.audit(ctx, request.ProjectID, "bid.awarded", winningBidID, map[string]any{
		"request_id":    reqID.String(),
		"bidder_id":     winner.BidderID.String(),
		"amount_cents":  winner.AmountCents,
		"rejected_bids": rejectedBids,
	})
	if s.notifier != nil {
		s.notifier.BidAwarded(ctx, winner.BidderID, request.Title, request.ProjectID, winner.AmountCents, winner.Currency)
	}

	s.log.Info("bid awarded",
		zap.String("request_id", reqID.String()),
		zap.String("bid_id", winningBidID.String()),
		zap.Int64("rejected_bids", rejectedBids),
	)

	return &domain.AwardResponse{
		RequestID:    reqID.String(),
		AwardedBidID: winningBidID.String(),
		RejectedBids: rejectedBids,
	}, nil
}

func (s *service) RejectBid(ctx context.Context, bidID string) error {
	id, err := parseID(bidID, domain.ErrBidNotFound)
	if err != nil {
		return err
	}

	var projectID snowflake.ID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		bid, err := repo.GetBid(ctx, id)
		if err != nil {
			return err
		}
		if bid.Status != domain.BidPending {
			return domain.ErrBidNotPending
		}

		request, err := repo.GetRequest(ctx, bid.RequestID)
		if err != nil {
			return err
		}
		projectID = request.ProjectID

		return repo.UpdateBidFields(ctx, id, map[string]any{
			"status":     domain.BidRejected,
			"updated_at": s.clock.Now(),
		})
	})
	if err != nil {
		return err
	}

	s.audit(ctx, projectID, "bid.rejected", id, nil)
	return nil
}

func (s *service) WithdrawBid(ctx context.Context, userID snowflake.ID, bidID string) error {
	id, err := parseID(bidID, domain.ErrBidNotFound)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		bid, err := repo.GetBid(ctx, id)
		if err != nil {
			return err
		}
		if bid.BidderID != userID {
			return domain.ErrNotBidOwner
		}
		if bid.Status != domain.BidPending {
			return domain.ErrBidNotPending
		}

		return repo.UpdateBidFields(ctx, id, map[string]any{
			"status":     domain.BidWithdrawn,
			"updated_at": s.clock.Now(),
		})
	})
}

// CloseExpired closes open requests whose deadline has passed without an
// award. Their remaining pending bids are rejected.
func (s *service) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	requests, err := s.repo.ListExpiredOpenRequests(ctx, now)
	if err != nil {
		return 0, err
	}

	var closed int64
	for _, request := range requests {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			current, err := repo.GetRequestForUpdate(ctx, request.ID)
			if err != nil {
				return err
			}
			if current.Status != domain.RequestPublished {
				return nil
			}

			if _, err := repo.RejectPendingBids(ctx, current.ID, 0, now); err != nil {
				return err
			}
			return repo.UpdateRequestFields(ctx, current.ID, map[string]any{
				"status":     domain.RequestClosed,
				"updated_at": now,
			})
		})
		if err != nil {
			s.log.Warn("failed to close expired request",
				zap.String("request_id", request.ID.String()),
				zap.Error(err),
			)
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *service) toRequestResponse(ctx context.Context, request *domain.ServiceRequest) *domain.RequestResponse {
	bidCount, err := s.repo.CountBidsByRequest(ctx, request.ID)
	if err != nil {
		bidCount = 0
	}

	resp := &domain.RequestResponse{
		ID:              request.ID.String(),
		ProjectID:       request.ProjectID.String(),
		CreatedBy:       request.CreatedBy.String(),
		Title:           request.Title,
		Description:     request.Description,
		Category:        request.Category,
		Status:          request.Status,
		BiddingDeadline: request.BiddingDeadline,
		BidCount:        bidCount,
		CreatedAt:       request.CreatedAt,
		UpdatedAt:       request.UpdatedAt,
	}
	if request.AwardedBidID != nil {
		resp.AwardedBidID = request.AwardedBidID.String()
	}
	return resp
}

func (s *service) audit(ctx context.Context, projectID snowflake.ID, action string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetStr := targetID.String()
	_ = s.auditSvc.AuditLog(ctx, &projectID, "", nil, action, "bid", &targetStr, metadata)
}

func toBidResponse(bid *domain.Bid) *domain.BidResponse {
	return &domain.BidResponse{
		ID:          bid.ID.String(),
		RequestID:   bid.RequestID.String(),
		BidderID:    bid.BidderID.String(),
		AmountCents: bid.AmountCents,
		Currency:    bid.Currency,
		Message:     bid.Message,
		Status:      bid.Status,
		CreatedAt:   bid.CreatedAt,
	}
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
