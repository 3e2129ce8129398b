package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbone30/card-trader/internal/domain"
	"github.com/tbone30/card-trader/internal/service"
)

var hundred = decimal.NewFromInt(100)

// maxEnvelopeOpportunities bounds the top_opportunities list in a detection
// response. More are stored; only the best few travel in the envelope.
const maxEnvelopeOpportunities = 5

// Detector runs one detection pass for a card.
type Detector interface {
	Detect(ctx context.Context, cardName string) (service.DetectionResult, error)
}

// Insighter aggregates recent market insights for a card.
type Insighter interface {
	Insights(ctx context.Context, cardName string) (domain.MarketInsights, error)
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// DetectionRequest is one on-demand or scheduled detection job.
type DetectionRequest struct {
	CardName string  `json:"card_name"`
	MaxPrice float64 `json:"max_price,omitempty"`
	Priority string  `json:"priority,omitempty"`
}

// DetectionResponse is the envelope returned for a successful detection run.
type DetectionResponse struct {
	CardName             string                 `json:"card_name"`
	OpportunitiesFound   int                    `json:"opportunities_found"`
	TopOpportunities     []domain.Opportunity   `json:"top_opportunities"`
	MarketInsights       *domain.MarketInsights `json:"market_insights,omitempty"`
	ExecutionTimeSeconds float64                `json:"execution_time_seconds"`
}

// DetectionError is the envelope returned for a failed detection run.
type DetectionError struct {
	ErrorType          string `json:"error_type"`
	Message            string `json:"error"`
	OpportunitiesFound int    `json:"opportunities_found"`
}

// Error implements the error interface.
func (e *DetectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorType, e.Message)
}

// AsDetectionError converts any error into the failure envelope using the
// domain error taxonomy.
func AsDetectionError(err error) *DetectionError {
	var de *DetectionError
	if errors.As(err, &de) {
		return de
	}
	return &DetectionError{
		ErrorType:          string(domain.ClassifyError(err)),
		Message:            err.Error(),
		OpportunitiesFound: 0,
	}
}

// DetectionWorkflow wraps the detector with retries, response envelopes,
// optional insight enrichment and operator notifications.
type DetectionWorkflow struct {
	detector     Detector
	insighter    Insighter // optional
	notifier     Notifier  // optional
	maxAttempts  int
	retryBackoff time.Duration
	logger       *slog.Logger

	// sleep is overridable so retry tests run instantly.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDetectionWorkflow creates a DetectionWorkflow. Insighter and notifier may
// be nil.
func NewDetectionWorkflow(detector Detector, insighter Insighter, notifier Notifier, maxAttempts int, retryBackoff time.Duration, logger *slog.Logger) *DetectionWorkflow {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if retryBackoff <= 0 {
		retryBackoff = 2 * time.Second
	}
	return &DetectionWorkflow{
		detector:     detector,
		insighter:    insighter,
		notifier:     notifier,
		maxAttempts:  maxAttempts,
		retryBackoff: retryBackoff,
		logger:       logger.With(slog.String("component", "detection_workflow")),
		sleep:        sleepCtx,
	}
}

// Execute runs detection for the requested card with retries and builds the
// response envelope. Validation failures are never retried; transient failures
// are retried with exponential backoff up to maxAttempts.
func (w *DetectionWorkflow) Execute(ctx context.Context, req DetectionRequest) (DetectionResponse, error) {
	start := time.Now()

	cardName := strings.TrimSpace(req.CardName)
	if cardName == "" {
		return DetectionResponse{}, &DetectionError{
			ErrorType: string(domain.ErrorTypeValidation),
			Message:   "card_name is required",
		}
	}

	result, err := w.detectWithRetry(ctx, cardName)
	if err != nil {
		w.logger.ErrorContext(ctx, "detection workflow failed",
			slog.String("card_name", cardName),
			slog.String("error", err.Error()),
		)
		return DetectionResponse{}, AsDetectionError(err)
	}

	resp := DetectionResponse{
		CardName:             cardName,
		OpportunitiesFound:   result.FilteredCount,
		TopOpportunities:     topN(result.Opportunities, maxEnvelopeOpportunities),
		ExecutionTimeSeconds: time.Since(start).Seconds(),
	}

	if w.insighter != nil && result.FilteredCount > 0 {
		insights, err := w.insighter.Insights(ctx, cardName)
		if err != nil {
			w.logger.WarnContext(ctx, "insights lookup failed",
				slog.String("card_name", cardName),
				slog.String("error", err.Error()),
			)
		} else {
			resp.MarketInsights = &insights
		}
	}

	if result.FilteredCount > 0 {
		w.notifyFound(ctx, cardName, result)
	}

	return resp, nil
}

// detectWithRetry retries transient detection failures. The backoff doubles
// after each attempt.
func (w *DetectionWorkflow) detectWithRetry(ctx context.Context, cardName string) (service.DetectionResult, error) {
	backoff := w.retryBackoff
	var lastErr error

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		result, err := w.detector.Detect(ctx, cardName)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// Bad input stays bad; retrying only burns quota.
		if errors.Is(err, domain.ErrValidation) {
			return service.DetectionResult{}, err
		}
		if attempt == w.maxAttempts {
			break
		}

		w.logger.WarnContext(ctx, "detection attempt failed, retrying",
			slog.String("card_name", cardName),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)
		if err := w.sleep(ctx, backoff); err != nil {
			return service.DetectionResult{}, err
		}
		backoff *= 2
	}

	return service.DetectionResult{}, fmt.Errorf("detection failed after %d attempts: %w", w.maxAttempts, lastErr)
}

// notifyFound alerts operators about fresh opportunities. Best effort.
func (w *DetectionWorkflow) notifyFound(ctx context.Context, cardName string, result service.DetectionResult) {
	if w.notifier == nil {
		return
	}

	title := fmt.Sprintf("Arbitrage: %s", cardName)
	message := fmt.Sprintf("%d opportunities found for %s", result.FilteredCount, cardName)
	if len(result.Opportunities) > 0 {
		best := result.Opportunities[0]
		message = fmt.Sprintf("%s. Best: %s profit $%s (%s%% margin, confidence %s)",
			message,
			best.PlatformPair,
			best.ProfitAmount.StringFixed(2),
			best.ProfitMargin.Mul(hundred).StringFixed(1),
			best.ConfidenceLevel.StringFixed(0),
		)
	}

	if err := w.notifier.Notify(ctx, "arb_detected", title, message); err != nil {
		w.logger.WarnContext(ctx, "notification failed",
			slog.String("card_name", cardName),
			slog.String("error", err.Error()),
		)
	}
}

func topN(opps []domain.Opportunity, n int) []domain.Opportunity {
	if len(opps) <= n {
		return opps
	}
	return opps[:n]
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrContextDone, ctx.Err())
	case <-timer.C:
		return nil
	}
}
