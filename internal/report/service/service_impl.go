package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	biddingdomain "github.com/timberline-hq/timberline/internal/bidding/domain"
	"github.com/timberline-hq/timberline/internal/clock"
	orderdomain "github.com/timberline-hq/timberline/internal/order/domain"
	projectdomain "github.com/timberline-hq/timberline/internal/project/domain"
	"github.com/timberline-hq/timberline/internal/providers/pdf"
	"github.com/timberline-hq/timberline/internal/report/domain"
	timelinedomain "github.com/timberline-hq/timberline/internal/timeline/domain"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	ProjectRepo projectdomain.Repository
	PDF         pdf.Provider
	Clock       clock.Clock
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	projectRepo projectdomain.Repository
	pdf         pdf.Provider
	clock       clock.Clock
}

func NewService(p Params) domain.Service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("report.service"),
		projectRepo: p.ProjectRepo,
		pdf:         p.PDF,
		clock:       p.Clock,
	}
}

func (s *service) ProjectSummary(ctx context.Context, projectID string, period domain.Period) (*domain.SummaryResponse, error) {
	project, entries, err := s.load(ctx, projectID, period)
	if err != nil {
		return nil, err
	}

	phases := map[string]int{}
	for _, entry := range entries {
		phases[entry.Phase]++
	}

	openRequests, awardedBids, ordersInFlight, err := s.counts(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	return &domain.SummaryResponse{
		ProjectID:      project.ID.String(),
		ProjectName:    project.Name,
		Status:         project.Status,
		Progress:       project.Progress,
		EntryCount:     len(entries),
		PhaseBreakdown: phases,
		OpenRequests:   openRequests,
		AwardedBids:    awardedBids,
		OrdersInFlight: ordersInFlight,
		GeneratedAt:    s.clock.Now(),
	}, nil
}

func (s *service) ExportPDF(ctx context.Context, projectID string, period domain.Period) (io.Reader, error) {
	project, entries, err := s.load(ctx, projectID, period)
	if err != nil {
		return nil, err
	}

	openRequests, awardedBids, ordersInFlight, err := s.counts(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	reportEntries := make([]pdf.ReportEntry, 0, len(entries))
	for _, entry := range entries {
		reportEntries = append(reportEntries, pdf.ReportEntry{
			Date:     entry.OccurredAt.Format("2006-01-02"),
			Phase:    entry.Phase,
			Title:    entry.Title,
			Progress: fmt.Sprintf("%d%%", entry.Progress),
		})
	}

	now := s.clock.Now()
	return s.pdf.GenerateProgressReport(ctx, pdf.ReportData{
		ProjectName:    project.Name,
		Address:        project.Address,
		Status:         project.Status,
		Progress:       project.Progress,
		GeneratedAt:    now.Format("2006-01-02 15:04 MST"),
		Period:         formatPeriod(period),
		Entries:        reportEntries,
		OpenRequests:   openRequests,
		AwardedBids:    awardedBids,
		OrdersInFlight: ordersInFlight,
	})
}

func (s *service) load(ctx context.Context, projectID string, period domain.Period) (*projectdomain.Project, []timelinedomain.TimelineEntry, error) {
	raw := strings.TrimSpace(projectID)
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return nil, nil, domain.ErrInvalidProject
	}
	if !period.From.IsZero() && !period.To.IsZero() && period.From.After(period.To) {
		return nil, nil, domain.ErrInvalidPeriod
	}

	project, err := s.projectRepo.GetProject(ctx, id)
	if err != nil {
		return nil, nil, domain.ErrInvalidProject
	}

	stmt := s.db.WithContext(ctx).
		Where("project_id = ?", id).
		Order("occurred_at asc")
	if !period.From.IsZero() {
		stmt = stmt.Where("occurred_at >= ?", period.From.UTC())
	}
	if !period.To.IsZero() {
		stmt = stmt.Where("occurred_at <= ?", period.To.UTC())
	}

	var entries []timelinedomain.TimelineEntry
	if err := stmt.Find(&entries).Error; err != nil {
		return nil, nil, err
	}
	return project, entries, nil
}

func (s *service) counts(ctx context.Context, projectID snowflake.ID) (int, int, int, error) {
	var openRequests int64
	err := s.db.WithContext(ctx).Model(&biddingdomain.ServiceRequest{}).
		Where("project_id = ? AND status = ?", projectID, biddingdomain.RequestPublished).
		Count(&openRequests).Error
	if err != nil {
		return 0, 0, 0, err
	}

	var awardedBids int64
	err = s.db.WithContext(ctx).Model(&biddingdomain.ServiceRequest{}).
		Where("project_id = ? AND status = ?", projectID, biddingdomain.RequestAwarded).
		Count(&awardedBids).Error
	if err != nil {
		return 0, 0, 0, err
	}

	var ordersInFlight int64
	err = s.db.WithContext(ctx).Model(&orderdomain.Order{}).
		Where("project_id = ? AND status IN ?", projectID,
			[]string{orderdomain.StatusPlaced, orderdomain.StatusConfirmed, orderdomain.StatusShipped}).
		Count(&ordersInFlight).Error
	if err != nil {
		return 0, 0, 0, err
	}

	return int(openRequests), int(awardedBids), int(ordersInFlight), nil
}

func formatPeriod(period domain.Period) string {
	switch {
	case period.From.IsZero() && period.To.IsZero():
		return "full project"
	case period.To.IsZero():
		return "from " + period.From.Format("2006-01-02")
	case period.From.IsZero():
		return "until " + period.To.Format("2006-01-02")
	default:
		return period.From.Format("2006-01-02") + " to " + period.To.Format("2006-01-02")
	}
}
