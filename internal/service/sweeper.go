package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/tbone30/card-trader/internal/domain"
)

// Sweeper flips opportunities past their expiry from ACTIVE to EXPIRED on a
// fixed interval. Expired records stay queryable until the archiver moves
// them to cold storage.
type Sweeper struct {
	opportunities domain.OpportunityStore
	audit         domain.AuditStore
	interval      time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewSweeper creates a Sweeper. The audit store is optional.
func NewSweeper(opportunities domain.OpportunityStore, audit domain.AuditStore, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		opportunities: opportunities,
		audit:         audit,
		interval:      interval,
		logger:        logger.With(slog.String("component", "sweeper")),
		now:           time.Now,
	}
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper started", slog.Duration("interval", s.interval))
	defer s.logger.Info("sweeper stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "sweep failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepOnce expires overdue opportunities once and returns how many flipped.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	expired, err := s.opportunities.MarkExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "expired opportunities", slog.Int64("count", expired))
		if s.audit != nil {
			if err := s.audit.Log(ctx, "opportunity_sweep", map[string]any{"expired": expired}); err != nil {
				s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
			}
		}
	}
	return expired, nil
}
