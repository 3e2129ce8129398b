package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tbone30/card-trader/internal/arbitrage"
	"github.com/tbone30/card-trader/internal/pipeline"
	"github.com/tbone30/card-trader/internal/server"
	"github.com/tbone30/card-trader/internal/server/handler"
	"github.com/tbone30/card-trader/internal/server/ws"
	"github.com/tbone30/card-trader/internal/service"
)

const shutdownTimeout = 10 * time.Second

// services bundles the domain services that every operating mode builds on.
type services struct {
	listings      *service.ListingService
	detector      *service.DetectorService
	opportunities *service.OpportunityService
	sweeper       *service.Sweeper
	workflow      *pipeline.DetectionWorkflow
}

// buildServices constructs the detection core shared by all modes: the pairing
// engine, the per-card services, the expiry sweeper, and the retrying
// detection workflow.
func (a *App) buildServices(deps *Dependencies) *services {
	det := a.cfg.Detector

	risk := arbitrage.NewRiskModel()
	risk.ConditionTolerance = det.ConditionTolerance

	engine := arbitrage.NewEngine(arbitrage.EngineConfig{
		MinProfitMargin:      decimal.NewFromFloat(det.MinProfitMargin),
		MinProfitAmount:      decimal.NewFromFloat(det.MinProfitAmount),
		MaxRiskScore:         decimal.NewFromFloat(det.MaxRiskScore),
		MaxPriceRatio:        decimal.NewFromFloat(det.MaxPriceRatio),
		MaxCandidatesPerSide: det.MaxCandidatesPerSide,
		OpportunityTTL:       det.OpportunityTTL.Duration,
	}, arbitrage.DefaultFeeSchedule(), risk, a.logger)

	listings := service.NewListingService(
		deps.ListingStore,
		deps.ListingCache,
		det.ListingTTL.Duration,
		a.logger,
	)

	detector := service.NewDetectorService(service.DetectorServiceConfig{
		Listings:        deps.ListingStore,
		Opportunities:   deps.OpportunityStore,
		Cache:           deps.ListingCache,
		Engine:          engine,
		Bus:             deps.SignalBus,
		Audit:           deps.AuditStore,
		FreshnessWindow: det.FreshnessWindow.Duration,
		MaxPerCard:      det.MaxOpportunitiesPerCard,
		Logger:          a.logger,
	})

	opportunities := service.NewOpportunityService(deps.OpportunityStore, a.logger)

	sweeper := service.NewSweeper(
		deps.OpportunityStore,
		deps.AuditStore,
		a.cfg.Pipeline.SweepInterval.Duration,
		a.logger,
	)

	workflow := pipeline.NewDetectionWorkflow(
		detector,
		opportunities,
		deps.Notifier,
		det.MaxAttempts,
		det.RetryBackoff.Duration,
		a.logger,
	)

	return &services{
		listings:      listings,
		detector:      detector,
		opportunities: opportunities,
		sweeper:       sweeper,
		workflow:      workflow,
	}
}

// buildScraper constructs the eBay listing scraper over the configured card
// watchlists. Returns nil when no eBay client was wired.
func (a *App) buildScraper(deps *Dependencies, svcs *services) *pipeline.ListingScraper {
	if deps.Ebay == nil {
		return nil
	}
	cards := pipeline.Targets(
		mergeCards(a.cfg.Scheduler.PriorityCards, a.cfg.Scheduler.PopularCards),
		a.cfg.Scheduler.DefaultMaxPrice,
	)
	return pipeline.NewListingScraper(deps.Ebay, svcs.listings, cards, a.cfg.Ebay.SearchLimit, a.logger)
}

// buildScheduler constructs the watchlist scheduler that drives periodic
// detection passes.
func (a *App) buildScheduler(svcs *services) *pipeline.Scheduler {
	sched := a.cfg.Scheduler
	return pipeline.NewScheduler(svcs.workflow, svcs.opportunities, svcs.sweeper, pipeline.SchedulerConfig{
		PriorityCards:          sched.PriorityCards,
		PopularCards:           sched.PopularCards,
		HourlyInterval:         sched.HourlyInterval.Duration,
		DailyInterval:          sched.DailyInterval.Duration,
		PriorityInterval:       sched.PriorityInterval.Duration,
		HourlyTopN:             sched.HourlyTopN,
		PriorityTopN:           sched.PriorityTopN,
		MinActiveOpportunities: sched.MinActiveOpportunities,
		PriorityMaxPrice:       sched.PriorityMaxPrice,
		DefaultMaxPrice:        sched.DefaultMaxPrice,
	}, a.logger)
}

// buildArchiver constructs the cold-storage archiver loop. Returns nil when no
// blob archiver was wired.
func (a *App) buildArchiver(deps *Dependencies) *pipeline.Archiver {
	if deps.Archiver == nil {
		return nil
	}
	return pipeline.NewArchiver(deps.Archiver, a.cfg.Pipeline.ArchiveRetentionDays, a.logger)
}

// buildServer constructs the HTTP API server and its WebSocket hub.
func (a *App) buildServer(deps *Dependencies, svcs *services, startedAt time.Time) (*server.Server, *ws.Hub) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: startedAt,
	})

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(a.logger),
		Opportunities: handler.NewOpportunityHandler(svcs.opportunities, a.logger),
		Search: handler.NewSearchHandler(
			svcs.workflow,
			deps.RateLimiter,
			a.cfg.Pipeline.SearchCooldown.Duration,
			a.logger,
		),
		Listings: handler.NewListingHandler(
			svcs.listings,
			a.cfg.Detector.FreshnessWindow.Duration,
			a.logger,
		),
		Insights: handler.NewInsightHandler(svcs.opportunities, a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, startedAt, deps.ListingStore),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	return srv, hub
}

// DetectMode runs one detection pass over the priority watchlist and exits.
// It is the one-shot counterpart to schedule mode, useful for cron jobs and
// manual runs.
func (a *App) DetectMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting detect mode")

	svcs := a.buildServices(deps)

	cards := a.cfg.Scheduler.PriorityCards
	if len(cards) == 0 {
		cards = a.cfg.Scheduler.PopularCards
	}
	if len(cards) == 0 {
		return fmt.Errorf("app: detect mode: no cards configured")
	}

	var failures int
	for _, card := range cards {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resp, err := svcs.workflow.Execute(ctx, pipeline.DetectionRequest{
			CardName: card,
			MaxPrice: a.cfg.Scheduler.DefaultMaxPrice,
		})
		if err != nil {
			failures++
			a.logger.ErrorContext(ctx, "detection failed",
				slog.String("card_name", card),
				slog.String("error", err.Error()),
			)
			continue
		}
		a.logger.InfoContext(ctx, "detection complete",
			slog.String("card_name", card),
			slog.Int("opportunities_found", resp.OpportunitiesFound),
			slog.Float64("execution_time_seconds", resp.ExecutionTimeSeconds),
		)
	}

	if expired, err := svcs.sweeper.SweepOnce(ctx); err != nil {
		a.logger.WarnContext(ctx, "expiry sweep failed", slog.String("error", err.Error()))
	} else if expired > 0 {
		a.logger.InfoContext(ctx, "expired opportunities swept", slog.Int64("count", expired))
	}

	if failures == len(cards) {
		return fmt.Errorf("app: detect mode: all %d cards failed", len(cards))
	}
	return nil
}

// ScrapeMode runs the eBay listing scraper loop plus the expiry sweeper.
func (a *App) ScrapeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scrape mode")

	svcs := a.buildServices(deps)
	scraper := a.buildScraper(deps, svcs)
	if scraper == nil {
		return fmt.Errorf("app: scrape mode requires ebay credentials")
	}

	orch := pipeline.NewOrchestrator(
		scraper,
		nil,
		svcs.sweeper,
		nil,
		a.cfg.Pipeline.ScrapeInterval.Duration,
		0,
		a.logger,
	)
	return orch.Run(ctx)
}

// ScheduleMode runs the watchlist scheduler, expiry sweeper, and archiver.
func (a *App) ScheduleMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting schedule mode")

	svcs := a.buildServices(deps)

	orch := pipeline.NewOrchestrator(
		nil,
		a.buildScheduler(svcs),
		svcs.sweeper,
		a.buildArchiver(deps),
		0,
		a.cfg.Pipeline.ArchiveInterval.Duration,
		a.logger,
	)
	return orch.Run(ctx)
}

// ServerMode runs the HTTP + WebSocket API and the expiry sweeper, without any
// scraping or scheduled detection.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	svcs := a.buildServices(deps)
	srv, hub := a.buildServer(deps, svcs, time.Now().UTC())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("ws hub: %w", err)
	})

	g.Go(func() error {
		err := svcs.sweeper.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("sweeper: %w", err)
	})

	g.Go(func() error {
		return a.runHTTPServer(ctx, srv)
	})

	return g.Wait()
}

// FullMode runs everything: scraping (if enabled), scheduled detection,
// sweeping, archival, and the HTTP + WebSocket API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.Bool("scrape_enabled", a.cfg.Pipeline.ScrapeEnabled),
		slog.Bool("server_enabled", a.cfg.Server.Enabled),
	)

	svcs := a.buildServices(deps)

	g, ctx := errgroup.WithContext(ctx)

	orch := pipeline.NewOrchestrator(
		a.buildScraper(deps, svcs),
		a.buildScheduler(svcs),
		svcs.sweeper,
		a.buildArchiver(deps),
		a.cfg.Pipeline.ScrapeInterval.Duration,
		a.cfg.Pipeline.ArchiveInterval.Duration,
		a.logger,
	)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		srv, hub := a.buildServer(deps, svcs, time.Now().UTC())

		g.Go(func() error {
			err := hub.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("ws hub: %w", err)
		})

		g.Go(func() error {
			return a.runHTTPServer(ctx, srv)
		})
	}

	return g.Wait()
}

// runHTTPServer starts the server and shuts it down gracefully when the
// context is cancelled.
func (a *App) runHTTPServer(ctx context.Context, srv *server.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown failed", slog.String("error", err.Error()))
		}
		return <-errCh
	case err := <-errCh:
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("http server: %w", err)
	}
}

// mergeCards returns the union of the two watchlists, preserving order and
// dropping duplicates.
func mergeCards(priority, popular []string) []string {
	seen := make(map[string]struct{}, len(priority)+len(popular))
	out := make([]string, 0, len(priority)+len(popular))
	for _, list := range [][]string{priority, popular} {
		for _, card := range list {
			if _, ok := seen[card]; ok {
				continue
			}
			seen[card] = struct{}{}
			out = append(out, card)
		}
	}
	return out
}
