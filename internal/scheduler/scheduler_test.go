package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	auditdomain "github.com/timberline-hq/timberline/internal/audit/domain"
	biddingdomain "github.com/timberline-hq/timberline/internal/bidding/domain"
	"github.com/timberline-hq/timberline/internal/clock"
	invitationdomain "github.com/timberline-hq/timberline/internal/invitation/domain"
)

type mockInvitationSvc struct {
	expireCalls []time.Time
	expired     int64
	err         error
}

func (m *mockInvitationSvc) Issue(context.Context, snowflake.ID, invitationdomain.IssueRequest) (*invitationdomain.IssueResponse, error) {
	return nil, nil
}
func (m *mockInvitationSvc) Resolve(context.Context, string) (*invitationdomain.ResolveResponse, error) {
	return nil, nil
}
func (m *mockInvitationSvc) Accept(context.Context, snowflake.ID, string, string) (*invitationdomain.AcceptResponse, error) {
	return nil, nil
}
func (m *mockInvitationSvc) Decline(context.Context, string, string) error { return nil }
func (m *mockInvitationSvc) Revoke(context.Context, string) error          { return nil }
func (m *mockInvitationSvc) ListByProject(context.Context, string) ([]invitationdomain.InvitationResponse, error) {
	return nil, nil
}
func (m *mockInvitationSvc) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	m.expireCalls = append(m.expireCalls, now)
	return m.expired, m.err
}

type mockBiddingSvc struct {
	closeCalls []time.Time
	closed     int64
	err        error
}

func (m *mockBiddingSvc) CreateRequest(context.Context, snowflake.ID, biddingdomain.CreateRequestRequest) (*biddingdomain.RequestResponse, error) {
	return nil, nil
}
func (m *mockBiddingSvc) Publish(context.Context, string) (*biddingdomain.RequestResponse, error) {
	return nil, nil
}
func (m *mockBiddingSvc) GetRequest(context.Context, string) (*biddingdomain.RequestResponse, error) {
	return nil, nil
}
func (m *mockBiddingSvc) ListByProject(context.Context, string) ([]biddingdomain.RequestResponse, error) {
	return nil, nil
}
func (m *mockBiddingSvc) SubmitBid(context.Context, snowflake.ID, string, biddingdomain.SubmitBidRequest) (*biddingdomain.BidResponse, error) {
	return nil, nil
}
func (m *mockBiddingSvc) GetBid(context.Context, string) (*biddingdomain.BidResponse, error) {
	return nil, nil
}
func (m *mockBiddingSvc) ListBids(context.Context, string) ([]biddingdomain.BidResponse, error) {
	return nil, nil
}
func (m *mockBiddingSvc) Award(context.Context, string, string) (*biddingdomain.AwardResponse, error) {
	return nil, nil
}
func (m *mockBiddingSvc) RejectBid(context.Context, string) error                 { return nil }
func (m *mockBiddingSvc) WithdrawBid(context.Context, snowflake.ID, string) error { return nil }
func (m *mockBiddingSvc) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	m.closeCalls = append(m.closeCalls, now)
	return m.closed, m.err
}

type mockAuditSvc struct {
	actions []string
}

func (m *mockAuditSvc) AuditLog(ctx context.Context, projectID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	m.actions = append(m.actions, action)
	return nil
}

func (m *mockAuditSvc) List(context.Context, auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

func newTestScheduler(t *testing.T, invitationSvc *mockInvitationSvc, biddingSvc *mockBiddingSvc, clk clock.Clock) (*Scheduler, *mockAuditSvc) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	audit := &mockAuditSvc{}
	sched, err := New(Params{
		Log:           zap.NewNop(),
		InvitationSvc: invitationSvc,
		BiddingSvc:    biddingSvc,
		AuditSvc:      audit,
		GenID:         node,
		Clock:         clk,
	})
	require.NoError(t, err)
	return sched, audit
}

func TestRunOnceSweepsWithClockTime(t *testing.T) {
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(start)
	invitationSvc := &mockInvitationSvc{expired: 3}
	biddingSvc := &mockBiddingSvc{closed: 1}
	sched, audit := newTestScheduler(t, invitationSvc, biddingSvc, clk)

	require.NoError(t, sched.RunOnce(context.Background()))
	require.Len(t, invitationSvc.expireCalls, 1)
	require.Len(t, biddingSvc.closeCalls, 1)
	require.Equal(t, start, invitationSvc.expireCalls[0])

	clk.Advance(48 * time.Hour)
	require.NoError(t, sched.RunOnce(context.Background()))
	require.Len(t, invitationSvc.expireCalls, 2)
	require.Equal(t, start.Add(48*time.Hour), invitationSvc.expireCalls[1])

	require.Contains(t, audit.actions, "scheduler.expire_invitations")
	require.Contains(t, audit.actions, "scheduler.close_bidding")
}

func TestRunOnceSkipsAuditWhenNothingProcessed(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
	invitationSvc := &mockInvitationSvc{}
	biddingSvc := &mockBiddingSvc{}
	sched, audit := newTestScheduler(t, invitationSvc, biddingSvc, clk)

	require.NoError(t, sched.RunOnce(context.Background()))
	require.Empty(t, audit.actions)
}

func TestRunOnceJoinsJobErrors(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
	sweepErr := errors.New("sweep failed")
	invitationSvc := &mockInvitationSvc{err: sweepErr}
	biddingSvc := &mockBiddingSvc{closed: 2}
	sched, _ := newTestScheduler(t, invitationSvc, biddingSvc, clk)

	err := sched.RunOnce(context.Background())
	require.ErrorIs(t, err, sweepErr)
	// The failing invitation sweep must not stop the bidding sweep.
	require.Len(t, biddingSvc.closeCalls, 1)
}

func TestJobFilteringByName(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
	invitationSvc := &mockInvitationSvc{}
	biddingSvc := &mockBiddingSvc{}
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	sched, err := New(Params{
		Log:           zap.NewNop(),
		InvitationSvc: invitationSvc,
		BiddingSvc:    biddingSvc,
		GenID:         node,
		Clock:         clk,
		Config:        Config{EnabledJobs: []string{"close_bidding"}},
	})
	require.NoError(t, err)

	require.NoError(t, sched.RunOnce(context.Background()))
	require.Empty(t, invitationSvc.expireCalls)
	require.Len(t, biddingSvc.closeCalls, 1)
}
