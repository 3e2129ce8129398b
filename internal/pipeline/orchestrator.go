package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// SweepRunner runs an expiry sweep loop.
type SweepRunner interface {
	Run(ctx context.Context) error
}

// Orchestrator manages the pipeline goroutines: listing scraping, the card
// scheduler, expiry sweeping, and cold-storage archival. Components left nil
// are skipped, so each operating mode wires only what it needs.
type Orchestrator struct {
	scraper         *ListingScraper
	scheduler       *Scheduler
	sweeper         SweepRunner
	archiver        *Archiver
	scrapeInterval  time.Duration
	archiveInterval time.Duration
	logger          *slog.Logger
}

// NewOrchestrator creates an Orchestrator over the given components.
func NewOrchestrator(
	scraper *ListingScraper,
	scheduler *Scheduler,
	sweeper SweepRunner,
	archiver *Archiver,
	scrapeInterval time.Duration,
	archiveInterval time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		scraper:         scraper,
		scheduler:       scheduler,
		sweeper:         sweeper,
		archiver:        archiver,
		scrapeInterval:  scrapeInterval,
		archiveInterval: archiveInterval,
		logger:          logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts every configured sub-pipeline as a concurrent goroutine using an
// errgroup. If any goroutine returns a non-context error, the errgroup cancels
// the shared context and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Bool("scraper", o.scraper != nil),
		slog.Bool("scheduler", o.scheduler != nil),
		slog.Bool("sweeper", o.sweeper != nil),
		slog.Bool("archiver", o.archiver != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	if o.scraper != nil {
		g.Go(func() error {
			o.logger.Info("starting listing scraper loop")
			err := o.scraper.RunLoop(ctx, o.scrapeInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("listing scraper: %w", err)
		})
	}

	if o.scheduler != nil {
		g.Go(func() error {
			o.logger.Info("starting scheduler")
			err := o.scheduler.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("scheduler: %w", err)
		})
	}

	if o.sweeper != nil {
		g.Go(func() error {
			o.logger.Info("starting expiry sweeper")
			err := o.sweeper.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("sweeper: %w", err)
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			o.logger.Info("starting archiver loop")
			err := o.archiver.RunLoop(ctx, o.archiveInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
