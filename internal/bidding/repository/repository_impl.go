package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/timberline-hq/timberline/internal/bidding/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateRequest(ctx context.Context, request domain.ServiceRequest) error {
	return r.db.WithContext(ctx).Create(&request).Error
}

func (r *repository) GetRequest(ctx context.Context, id snowflake.ID) (*domain.ServiceRequest, error) {
	var request domain.ServiceRequest
	err := r.db.WithContext(ctx).First(&request, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) GetRequestForUpdate(ctx context.Context, id snowflake.ID) (*domain.ServiceRequest, error) {
	var request domain.ServiceRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&request, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) UpdateRequestFields(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	tx := r.db.WithContext(ctx).Model(&domain.ServiceRequest{}).Where("id = ?", id).Updates(fields)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrRequestNotFound
	}
	return nil
}

func (r *repository) ListRequestsByProject(ctx context.Context, projectID snowflake.ID) ([]domain.ServiceRequest, error) {
	var requests []domain.ServiceRequest
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at desc").
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repository) ListExpiredOpenRequests(ctx context.Context, now time.Time) ([]domain.ServiceRequest, error) {
	var requests []domain.ServiceRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND bidding_deadline IS NOT NULL AND bidding_deadline <= ?", domain.RequestPublished, now).
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repository) CreateBid(ctx context.Context, bid domain.Bid) error {
	return r.db.WithContext(ctx).Create(&bid).Error
}

func (r *repository) GetBid(ctx context.Context, id snowflake.ID) (*domain.Bid, error) {
	var bid domain.Bid
	err := r.db.WithContext(ctx).First(&bid, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrBidNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

func (r *repository) UpdateBidFields(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	tx := r.db.WithContext(ctx).Model(&domain.Bid{}).Where("id = ?", id).Updates(fields)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrBidNotFound
	}
	return nil
}

func (r *repository) ListBidsByRequest(ctx context.Context, requestID snowflake.ID) ([]domain.Bid, error) {
	var bids []domain.Bid
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("amount_cents asc, created_at asc").
		Find(&bids).Error
	if err != nil {
		return nil, err
	}
	return bids, nil
}

func (r *repository) CountBidsByRequest(ctx context.Context, requestID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Bid{}).
		Where("request_id = ?", requestID).
		Count(&count).Error
	return count, err
}

func (r *repository) RejectPendingBids(ctx context.Context, requestID snowflake.ID, exceptBidID snowflake.ID, at time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&domain.Bid{}).
		Where("request_id = ? AND status = ? AND id <> ?", requestID, domain.BidPending, exceptBidID).
		Updates(map[string]any{
			"status":     domain.BidRejected,
			"updated_at": at,
		})
	return tx.RowsAffected, tx.Error
}
