package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// ActiveCounter reports how many unexpired opportunities a card has.
type ActiveCounter interface {
	ActiveCount(ctx context.Context, cardName string) (int64, error)
}

// Expirer flips overdue opportunities to EXPIRED.
type Expirer interface {
	SweepOnce(ctx context.Context) (int64, error)
}

// SchedulerConfig holds the card watchlists and check cadences.
type SchedulerConfig struct {
	// PriorityCards are checked hourly (top HourlyTopN) and on the tighter
	// priority cadence (top PriorityTopN).
	PriorityCards []string
	// PopularCards get one staggered detection pass per daily interval.
	PopularCards []string

	HourlyInterval   time.Duration
	DailyInterval    time.Duration
	PriorityInterval time.Duration

	HourlyTopN   int
	PriorityTopN int

	// MinActiveOpportunities is the coverage floor: hourly checks only run
	// detection for cards that have fewer active opportunities than this.
	MinActiveOpportunities int

	PriorityMaxPrice float64
	DefaultMaxPrice  float64
}

// Scheduler drives recurring detection runs over the card watchlists. It
// keeps priority cards covered on a tight cadence and sweeps the full popular
// list once per day.
type Scheduler struct {
	workflow *DetectionWorkflow
	counter  ActiveCounter
	expirer  Expirer // optional
	cfg      SchedulerConfig
	logger   *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewScheduler creates a Scheduler.
func NewScheduler(workflow *DetectionWorkflow, counter ActiveCounter, expirer Expirer, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.HourlyInterval <= 0 {
		cfg.HourlyInterval = time.Hour
	}
	if cfg.DailyInterval <= 0 {
		cfg.DailyInterval = 24 * time.Hour
	}
	if cfg.PriorityInterval <= 0 {
		cfg.PriorityInterval = 15 * time.Minute
	}
	if cfg.HourlyTopN <= 0 {
		cfg.HourlyTopN = 3
	}
	if cfg.PriorityTopN <= 0 {
		cfg.PriorityTopN = 5
	}
	if cfg.MinActiveOpportunities <= 0 {
		cfg.MinActiveOpportunities = 2
	}
	return &Scheduler{
		workflow: workflow,
		counter:  counter,
		expirer:  expirer,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "scheduler")),
		sleep:    sleepCtx,
	}
}

// Run starts the hourly, priority and daily loops and blocks until the
// context is cancelled or a loop fails.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting",
		slog.Int("priority_cards", len(s.cfg.PriorityCards)),
		slog.Int("popular_cards", len(s.cfg.PopularCards)),
		slog.Duration("hourly_interval", s.cfg.HourlyInterval),
		slog.Duration("daily_interval", s.cfg.DailyInterval),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.runOnInterval(ctx, s.cfg.HourlyInterval, "hourly", s.HourlyPass)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("hourly loop: %w", err)
	})
	g.Go(func() error {
		err := s.runOnInterval(ctx, s.cfg.PriorityInterval, "priority", s.PriorityPass)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("priority loop: %w", err)
	})
	g.Go(func() error {
		err := s.runOnInterval(ctx, s.cfg.DailyInterval, "daily", s.DailyPass)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("daily loop: %w", err)
	})

	err := g.Wait()
	if err != nil {
		s.logger.Error("scheduler stopped with error", slog.String("error", err.Error()))
		return err
	}

	s.logger.Info("scheduler stopped cleanly")
	return nil
}

// runOnInterval runs pass immediately and then on every tick. Pass errors are
// logged, not fatal; only context cancellation stops the loop.
func (s *Scheduler) runOnInterval(ctx context.Context, interval time.Duration, name string, pass func(context.Context) error) error {
	if err := pass(ctx); err != nil {
		s.logger.Error("scheduled pass failed",
			slog.String("pass", name),
			slog.String("error", err.Error()),
		)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := pass(ctx); err != nil {
				s.logger.Error("scheduled pass failed",
					slog.String("pass", name),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// HourlyPass checks opportunity coverage for the top priority cards and runs
// detection only for under-covered ones, then sweeps expired opportunities.
func (s *Scheduler) HourlyPass(ctx context.Context) error {
	cards := headOf(s.cfg.PriorityCards, s.cfg.HourlyTopN)
	triggered := 0

	for _, card := range cards {
		if err := ctx.Err(); err != nil {
			return err
		}

		count, err := s.counter.ActiveCount(ctx, card)
		if err != nil {
			s.logger.ErrorContext(ctx, "active count failed",
				slog.String("card_name", card),
				slog.String("error", err.Error()),
			)
			continue
		}
		if count >= int64(s.cfg.MinActiveOpportunities) {
			continue
		}

		s.logger.InfoContext(ctx, "coverage below floor, triggering detection",
			slog.String("card_name", card),
			slog.Int64("active", count),
			slog.Int("floor", s.cfg.MinActiveOpportunities),
		)
		if _, err := s.workflow.Execute(ctx, DetectionRequest{
			CardName: card,
			MaxPrice: s.cfg.DefaultMaxPrice,
		}); err != nil {
			s.logger.ErrorContext(ctx, "scheduled detection failed",
				slog.String("card_name", card),
				slog.String("error", err.Error()),
			)
			continue
		}
		triggered++
	}

	if s.expirer != nil {
		if _, err := s.expirer.SweepOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "sweep failed", slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "hourly pass complete",
		slog.Int("checked", len(cards)),
		slog.Int("triggered", triggered),
	)
	return nil
}

// PriorityPass runs detection unconditionally for the top priority cards with
// the higher priority price ceiling.
func (s *Scheduler) PriorityPass(ctx context.Context) error {
	cards := headOf(s.cfg.PriorityCards, s.cfg.PriorityTopN)

	for _, card := range cards {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.workflow.Execute(ctx, DetectionRequest{
			CardName: card,
			MaxPrice: s.cfg.PriorityMaxPrice,
			Priority: "high",
		}); err != nil {
			s.logger.ErrorContext(ctx, "priority detection failed",
				slog.String("card_name", card),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// DailyPass runs detection across the whole popular list, staggered so the
// runs spread over the interval instead of bursting.
func (s *Scheduler) DailyPass(ctx context.Context) error {
	stagger := s.dailyStagger()

	for i, card := range s.cfg.PopularCards {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 && stagger > 0 {
			if err := s.sleep(ctx, stagger); err != nil {
				return err
			}
		}
		if _, err := s.workflow.Execute(ctx, DetectionRequest{
			CardName: card,
			MaxPrice: s.cfg.DefaultMaxPrice,
		}); err != nil {
			s.logger.ErrorContext(ctx, "daily detection failed",
				slog.String("card_name", card),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "daily pass complete", slog.Int("cards", len(s.cfg.PopularCards)))
	return nil
}

// dailyStagger spreads the popular-card runs over at most a quarter of the
// daily interval, capped at five minutes between cards.
func (s *Scheduler) dailyStagger() time.Duration {
	if len(s.cfg.PopularCards) < 2 {
		return 0
	}
	stagger := s.cfg.DailyInterval / 4 / time.Duration(len(s.cfg.PopularCards))
	if stagger > 5*time.Minute {
		stagger = 5 * time.Minute
	}
	return stagger
}

func headOf(cards []string, n int) []string {
	if len(cards) <= n {
		return cards
	}
	return cards[:n]
}
