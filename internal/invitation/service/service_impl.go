package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/timberline-hq/timberline/internal/audit/domain"
	"github.com/timberline-hq/timberline/internal/cache"
	"github.com/timberline-hq/timberline/internal/clock"
	"github.com/timberline-hq/timberline/internal/config"
	"github.com/timberline-hq/timberline/internal/invitation/domain"
	"github.com/timberline-hq/timberline/internal/observability/metrics"
	projectdomain "github.com/timberline-hq/timberline/internal/project/domain"
	"github.com/timberline-hq/timberline/pkg/db"
)

// Terminal resolutions are immutable, so they may be served from cache.
// Pending always hits the database; it is the only state that can change
// underneath us.
const resolveCacheTTL = 30 * time.Second

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
	resolved    cache.Cache[string, domain.ResolveResponse]
}

func NewService(p Params) domain.Service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("invitation.service"),
		repo:        p.Repo,
		projectRepo: p.ProjectRepo,
		genID:       p.GenID,
		clock:       p.Clock,
		holder:      p.Holder,
		metrics:     p.Metrics,
		auditSvc:    p.AuditSvc,
		notifier:    p.Notifier,
		resolved:    cache.NewTTLCache[string, domain.ResolveResponse](),
	}
}

func (s *service) Issue(ctx context.Context, userID snowflake.ID, req domain.IssueRequest) (*domain.IssueResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.ErrInvalidEmail
	}

	role := strings.TrimSpace(req.Role)
	if !domain.ValidRole(role) {
		return nil, domain.ErrInvalidRole
	}

	projectID, err := parseProjectID(req.ProjectID)
	if err != nil {
		return nil, err
	}
	project, err := s.projectRepo.GetProject(ctx, projectID)
	if err != nil {
		return nil, domain.ErrInvalidProject
	}
	if project.Status == projectdomain.StatusCancelled {
		return nil, domain.ErrProjectCancelled
	}

	workflow := s.holder.Current()
	memberCount, err := s.projectRepo.CountMembers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if workflow.MaxTeamSize > 0 && memberCount >= int64(workflow.MaxTeamSize) {
		return nil, domain.ErrTeamFull
	}

	rawToken, tokenHash, err := newInviteToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	invitation := domain.Invitation{
		ID:        s.genID.Generate(),
		ProjectID: projectID,
		Email:     email,
		Role:      role,
		TokenHash: tokenHash,
		Status:    domain.StatusPending,
		InvitedBy: userID,
		ExpiresAt: now.Add(workflow.InvitationTTL()),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		// A fresh invite supersedes any pending one for the same address.
		if err := repo.RevokePending(ctx, projectID, email, now); err != nil {
			return err
		}
		return repo.Create(ctx, invitation)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordInvitationIssued(ctx, role)
	}
	s.audit(ctx, projectID, userID, "invitation.issued", invitation.ID, map[string]any{
		"email": email,
		"role":  role,
	})
	if s.notifier != nil {
		s.notifier.InvitationIssued(ctx, email, project.Name, role, rawToken, invitation.ExpiresAt)
	}

	s.log.Info("invitation issued",
		zap.String("invitation_id", invitation.ID.String()),
		zap.String("project_id", projectID.String()),
		zap.String("role", role),
	)

	return &domain.IssueResponse{
		ID:        invitation.ID.String(),
		ProjectID: projectID.String(),
		Email:     email,
		Role:      role,
		RawToken:  rawToken,
		ExpiresAt: invitation.ExpiresAt,
	}, nil
}

func (s *service) Resolve(ctx context.Context, rawToken string) (*domain.ResolveResponse, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, domain.ErrNotFound
	}
	tokenHash := hashToken(rawToken)

	if cached, ok := s.resolved.Get(tokenHash); ok {
		if s.metrics != nil {
			s.metrics.RecordInvitationResolved(ctx, cached.Resolution)
		}
		return &cached, nil
	}

	invitation, err := s.repo.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}

	resp := s.classify(invitation)
	if resp.Resolution != domain.ResolutionPending {
		s.resolved.Set(tokenHash, *resp, resolveCacheTTL)
	} else {
		if project, err := s.projectRepo.GetProject(ctx, invitation.ProjectID); err == nil {
			resp.ProjectName = project.Name
		}
	}

	if s.metrics != nil {
		s.metrics.RecordInvitationResolved(ctx, resp.Resolution)
	}
	return resp, nil
}

// classify orders the outcomes: a passed deadline beats any stored
// status, terminal statuses beat pending.
func (s *service) classify(invitation *domain.Invitation) *domain.ResolveResponse {
	now := s.clock.Now()

	if invitation.Status == domain.StatusExpired || !now.Before(invitation.ExpiresAt) {
		return &domain.ResolveResponse{Resolution: domain.ResolutionExpired}
	}
	if domain.Terminal(invitation.Status) {
		return &domain.ResolveResponse{Resolution: domain.ResolutionAlreadyProcessed}
	}
	return &domain.ResolveResponse{
		Resolution: domain.ResolutionPending,
		ProjectID:  invitation.ProjectID.String(),
		Email:      invitation.Email,
		Role:       invitation.Role,
		ExpiresAt:  invitation.ExpiresAt,
	}
}

func (s *service) Accept(ctx context.Context, userID snowflake.ID, userEmail string, rawToken string) (*domain.AcceptResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, domain.ErrNotFound
	}
	userEmail = strings.ToLower(strings.TrimSpace(userEmail))
	tokenHash := hashToken(rawToken)

	var resp *domain.AcceptResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		projectRepo := s.projectRepo.WithTx(tx)

		invitation, err := repo.GetByTokenHashForUpdate(ctx, tokenHash)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if invitation.Status == domain.StatusPending && !now.Before(invitation.ExpiresAt) {
			return domain.ErrExpired
		}
		// A burnt token stays burnt. Retries by the accepting user get
		// the same conflict; membership is already in place.
		if invitation.Status != domain.StatusPending {
			if invitation.Status == domain.StatusExpired {
				return domain.ErrExpired
			}
			return domain.ErrAlreadyProcessed
		}
		if invitation.Email != userEmail {
			return domain.ErrEmailMismatch
		}

		workflow := s.holder.Current()
		memberCount, err := projectRepo.CountMembers(ctx, invitation.ProjectID)
		if err != nil {
			return err
		}
		if workflow.MaxTeamSize > 0 && memberCount >= int64(workflow.MaxTeamSize) {
			return domain.ErrTeamFull
		}

		member := projectdomain.ProjectMember{
			ID:        s.genID.Generate(),
			ProjectID: invitation.ProjectID,
			UserID:    userID,
			Role:      invitation.Role,
			CreatedAt: now,
		}
		if err := projectRepo.AddMember(ctx, member); err != nil {
			if !db.IsDuplicateKeyErr(err) {
				return err
			}
			// Already a member; still burn the invitation below.
		}

		if err := repo.UpdateFields(ctx, invitation.ID, map[string]any{
			"status":       domain.StatusAccepted,
			"accepted_by":  userID,
			"processed_at": now,
			"updated_at":   now,
		}); err != nil {
			return err
		}

		resp = &domain.AcceptResponse{
			ProjectID: invitation.ProjectID.String(),
			Role:      invitation.Role,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.resolved.Delete(tokenHash)
	if projectID, err := snowflake.ParseString(resp.ProjectID); err == nil {
		userIDStr := userID.String()
		s.audit(ctx, projectID, userID, "invitation.accepted", 0, map[string]any{
			"user_id": userIDStr,
			"role":    resp.Role,
		})
	}
	return resp, nil
}

func (s *service) Decline(ctx context.Context, userEmail string, rawToken string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return domain.ErrNotFound
	}
	userEmail = strings.ToLower(strings.TrimSpace(userEmail))
	tokenHash := hashToken(rawToken)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		invitation, err := repo.GetByTokenHashForUpdate(ctx, tokenHash)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if invitation.Status == domain.StatusExpired ||
			(invitation.Status == domain.StatusPending && !now.Before(invitation.ExpiresAt)) {
			return domain.ErrExpired
		}
		if domain.Terminal(invitation.Status) {
			return domain.ErrAlreadyProcessed
		}
		if invitation.Email != userEmail {
			return domain.ErrEmailMismatch
		}

		return repo.UpdateFields(ctx, invitation.ID, map[string]any{
			"status":       domain.StatusDeclined,
			"processed_at": now,
			"updated_at":   now,
		})
	})
	if err != nil {
		return err
	}

	s.resolved.Delete(tokenHash)
	return nil
}

func (s *service) Revoke(ctx context.Context, invitationID string) error {
	id, err := snowflake.ParseString(strings.TrimSpace(invitationID))
	if err != nil || id == 0 {
		return domain.ErrNotFound
	}

	var tokenHash string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		invitation, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if domain.Terminal(invitation.Status) {
			return domain.ErrAlreadyProcessed
		}
		tokenHash = invitation.TokenHash

		now := s.clock.Now()
		return repo.UpdateFields(ctx, id, map[string]any{
			"status":       domain.StatusRevoked,
			"processed_at": now,
			"updated_at":   now,
		})
	})
	if err != nil {
		return err
	}

	s.resolved.Delete(tokenHash)
	return nil
}

func (s *service) ListByProject(ctx context.Context, projectID string) ([]domain.InvitationResponse, error) {
	id, err := parseProjectID(projectID)
	if err != nil {
		return nil, err
	}

	invitations, err := s.repo.ListByProject(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.InvitationResponse, 0, len(invitations))
	for _, invitation := range invitations {
		resp = append(resp, domain.InvitationResponse{
			ID:          invitation.ID.String(),
			ProjectID:   invitation.ProjectID.String(),
			Email:       invitation.Email,
			Role:        invitation.Role,
			Status:      invitation.Status,
			InvitedBy:   invitation.InvitedBy.String(),
			ExpiresAt:   invitation.ExpiresAt,
			ProcessedAt: invitation.ProcessedAt,
			CreatedAt:   invitation.CreatedAt,
		})
	}
	return resp, nil
}

func (s *service) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.ExpirePending(ctx, now)
}

func (s *service) audit(ctx context.Context, projectID snowflake.ID, userID snowflake.ID, action string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	userIDStr := userID.String()
	var target *string
	if targetID != 0 {
		targetStr := targetID.String()
		target = &targetStr
	}
	_ = s.auditSvc.AuditLog(ctx, &projectID, "user", &userIDStr, action, "invitation", target, metadata)
}

func parseProjectID(raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, domain.ErrInvalidProject
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidProject
	}
	return id, nil
}

// newInviteToken returns the raw token embedded in the invite link and
// the sha256 hex digest stored at rest.
func newInviteToken() (string, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw := hex.EncodeToString(buf)
	return raw, hashToken(raw), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
