package service

import (
	"context"
	"fmt"
	"time"

	"whatsapp-agent/backend/pkg/logger"

	"github.com/adhocore/gronx"
)

// DefaultSweepCron runs the approval sweep every five minutes
const DefaultSweepCron = "*/5 * * * *"

// SweepStats is the state of the approval queue at one sweep
type SweepStats struct {
	Pending int
	Expired int64
}

// ExpirySweeper periodically reports open and expired approval requests.
// Expired requests are never deleted; they only drop out of the pending list.
type ExpirySweeper struct {
	approvals *ApprovalService
	cron      string
	log       *logger.Logger
}

// NewExpirySweeper creates a sweeper. An empty expression uses DefaultSweepCron.
func NewExpirySweeper(approvals *ApprovalService, cronExpr string, log *logger.Logger) (*ExpirySweeper, error) {
	if cronExpr == "" {
		cronExpr = DefaultSweepCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid approval sweep cron expression: %s", cronExpr)
	}
	return &ExpirySweeper{approvals: approvals, cron: cronExpr, log: log}, nil
}

// SweepOnce counts open and expired requests and publishes the gauges
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (SweepStats, error) {
	if !s.approvals.store.Available() {
		return SweepStats{}, ErrPersistenceUnavailable
	}
	now := s.approvals.now()

	pending, err := s.approvals.store.Approvals.ListPending(ctx, now)
	if err != nil {
		return SweepStats{}, fmt.Errorf("list pending approvals: %w", err)
	}
	expired, err := s.approvals.store.Approvals.CountExpiredPending(ctx, now)
	if err != nil {
		return SweepStats{}, fmt.Errorf("count expired approvals: %w", err)
	}

	pendingApprovalsGauge.Set(float64(len(pending)))
	expiredApprovalsGauge.Set(float64(expired))
	return SweepStats{Pending: len(pending), Expired: expired}, nil
}

// Run sweeps at every cron tick until ctx is cancelled
func (s *ExpirySweeper) Run(ctx context.Context) {
	if !s.approvals.store.Available() {
		s.log.Warn("Persistence unavailable, approval sweep disabled")
		return
	}
	s.log.Info("Approval sweep started", "cron", s.cron)

	for {
		next, err := gronx.NextTickAfter(s.cron, time.Now().UTC(), false)
		if err != nil {
			s.log.LogError(err, "Failed to compute next approval sweep")
			next = time.Now().Add(time.Minute)
		}

		select {
		case <-ctx.Done():
			s.log.Info("Approval sweep stopping")
			return
		case <-time.After(time.Until(next)):
		}

		stats, err := s.SweepOnce(ctx)
		if err != nil {
			s.log.LogError(err, "Approval sweep failed")
			continue
		}
		if stats.Expired > 0 {
			s.log.Info("Unresolved approvals have expired", "expired", stats.Expired, "pending", stats.Pending)
		}
	}
}
