package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	auditdomain "github.com/timberline-hq/timberline/internal/audit/domain"
	biddingdomain "github.com/timberline-hq/timberline/internal/bidding/domain"
	"github.com/timberline-hq/timberline/internal/clock"
	invitationdomain "github.com/timberline-hq/timberline/internal/invitation/domain"
	obscontext "github.com/timberline-hq/timberline/internal/observability/context"
	obslogger "github.com/timberline-hq/timberline/internal/observability/logger"
	"github.com/timberline-hq/timberline/internal/ratelimit"
)

var ErrInvalidConfig = errors.New("scheduler requires db, services, clock and id generator")

type Params struct {
	fx.In

	Log           *zap.Logger
	InvitationSvc invitationdomain.Service
	BiddingSvc    biddingdomain.Service
	AuditSvc      auditdomain.Service `optional:"true"`
	Locker        *ratelimit.Locker   `optional:"true"`
	GenID         *snowflake.Node
	Clock         clock.Clock
	Config        Config `optional:"true"`
}

// Scheduler runs the periodic sweeps that move time-bound records into
// their terminal states: pending invitations past their expiry and open
// service requests past their bidding deadline.
type Scheduler struct {
	log           *zap.Logger
	cfg           Config
	genID         *snowflake.Node
	clock         clock.Clock
	invitationSvc invitationdomain.Service
	biddingSvc    biddingdomain.Service
	auditSvc      auditdomain.Service
	locker        *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.InvitationSvc == nil || p.BiddingSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		genID:         p.GenID,
		clock:         p.Clock,
		invitationSvc: p.InvitationSvc,
		biddingSvc:    p.BiddingSvc,
		auditSvc:      p.AuditSvc,
		locker:        p.Locker,
	}, nil
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) (int64, error)
	}{
		{"expire_invitations", s.isJobEnabled("expire_invitations"), func(ctx context.Context) (int64, error) {
			return s.invitationSvc.ExpirePending(ctx, s.clock.Now())
		}},
		{"close_bidding", s.isJobEnabled("close_bidding"), func(ctx context.Context) (int64, error) {
			return s.biddingSvc.CloseExpired(ctx, s.clock.Now())
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
		}
	}

	return err
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) (int64, error)) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	runID := s.genID.Generate().String()
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", runID),
	)

	if s.locker != nil {
		key := "scheduler:job:" + name
		token, acquired, lockErr := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
		if lockErr != nil {
			log.Warn("scheduler.lock.failed", zap.Error(lockErr))
			return fmt.Errorf("%s: %w", name, lockErr)
		}
		if !acquired {
			log.Debug("scheduler.job.skipped", zap.String("reason", "lock_held"))
			return nil
		}
		defer func() {
			if releaseErr := s.locker.Release(context.WithoutCancel(ctx), key, token); releaseErr != nil {
				log.Warn("scheduler.lock.release_failed", zap.Error(releaseErr))
			}
		}()
	}

	log.Info("scheduler.job.start")
	processed, err := fn(ctx)
	fields := []zap.Field{
		zap.Int64("processed_count", processed),
		zap.Int64("duration_ms", s.clock.Now().Sub(start).Milliseconds()),
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			log.Warn("scheduler.job.timeout", append(fields, zap.Error(err))...)
			return nil
		}
		log.Error("scheduler.job.failed", append(fields, zap.Error(err))...)
		return fmt.Errorf("%s: %w", name, err)
	}
	log.Info("scheduler.job.finish", fields...)

	if processed > 0 {
		s.recordSweep(ctx, name, runID, processed)
	}
	return nil
}

func (s *Scheduler) recordSweep(ctx context.Context, job, runID string, processed int64) {
	if s.auditSvc == nil {
		return
	}
	actorID := "scheduler"
	if err := s.auditSvc.AuditLog(ctx, nil, string(auditdomain.ActorTypeSystem), &actorID,
		"scheduler."+job, "job_run", &runID,
		map[string]any{"processed_count": processed},
	); err != nil {
		s.logger(ctx).Warn("scheduler.audit.failed", zap.String("job", job), zap.Error(err))
	}
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty EnabledJobs list enables every job.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}
