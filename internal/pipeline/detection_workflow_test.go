package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbone30/card-trader/internal/domain"
	"github.com/tbone30/card-trader/internal/service"
)

// fakeDetector returns scripted results, one per call.
type fakeDetector struct {
	results []service.DetectionResult
	errs    []error
	calls   int
}

func (f *fakeDetector) Detect(_ context.Context, cardName string) (service.DetectionResult, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var result service.DetectionResult
	if i < len(f.results) {
		result = f.results[i]
	}
	result.CardName = cardName
	return result, err
}

type fakeNotifier struct {
	events []string
	titles []string
}

func (f *fakeNotifier) Notify(_ context.Context, event, title, _ string) error {
	f.events = append(f.events, event)
	f.titles = append(f.titles, title)
	return nil
}

type fakeInsighter struct {
	insights domain.MarketInsights
	err      error
	calls    int
}

func (f *fakeInsighter) Insights(_ context.Context, cardName string) (domain.MarketInsights, error) {
	f.calls++
	f.insights.CardName = cardName
	return f.insights, f.err
}

func instantSleep(context.Context, time.Duration) error { return nil }

func sampleOpportunity(id string, profit string) domain.Opportunity {
	return domain.Opportunity{
		ID:              id,
		CardName:        "Charizard Base Set",
		PlatformPair:    "ebay-to-tcgplayer",
		ProfitAmount:    decimal.RequireFromString(profit),
		ProfitMargin:    decimal.RequireFromString("1.67"),
		RiskScore:       decimal.RequireFromString("1.8"),
		ConfidenceLevel: decimal.RequireFromString("84"),
	}
}

func TestExecute_BuildsResponseEnvelope(t *testing.T) {
	opps := make([]domain.Opportunity, 0, 7)
	for i := 0; i < 7; i++ {
		opps = append(opps, sampleOpportunity(string(rune('a'+i)), "16.70"))
	}
	detector := &fakeDetector{results: []service.DetectionResult{
		{Opportunities: opps, FilteredCount: 12},
	}}
	insighter := &fakeInsighter{insights: domain.MarketInsights{TotalOpportunities: 12}}

	w := NewDetectionWorkflow(detector, insighter, nil, 3, time.Millisecond, slog.Default())
	w.sleep = instantSleep

	resp, err := w.Execute(context.Background(), DetectionRequest{CardName: "Charizard Base Set"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.CardName != "Charizard Base Set" {
		t.Errorf("card_name = %s", resp.CardName)
	}
	if resp.OpportunitiesFound != 12 {
		t.Errorf("opportunities_found = %d, want 12", resp.OpportunitiesFound)
	}
	if len(resp.TopOpportunities) != 5 {
		t.Errorf("top_opportunities = %d, want capped at 5", len(resp.TopOpportunities))
	}
	if resp.MarketInsights == nil || resp.MarketInsights.TotalOpportunities != 12 {
		t.Errorf("market_insights = %+v", resp.MarketInsights)
	}
	if resp.ExecutionTimeSeconds < 0 {
		t.Errorf("execution_time_seconds = %f", resp.ExecutionTimeSeconds)
	}
}

func TestExecute_EmptyCardNameIsValidationEnvelope(t *testing.T) {
	w := NewDetectionWorkflow(&fakeDetector{}, nil, nil, 3, time.Millisecond, slog.Default())

	_, err := w.Execute(context.Background(), DetectionRequest{CardName: "  "})
	de := AsDetectionError(err)
	if de.ErrorType != string(domain.ErrorTypeValidation) {
		t.Fatalf("error_type = %s, want validation_error", de.ErrorType)
	}
	if de.OpportunitiesFound != 0 {
		t.Errorf("opportunities_found = %d, want 0", de.OpportunitiesFound)
	}
}

func TestExecute_RetriesTransientFailures(t *testing.T) {
	detector := &fakeDetector{
		errs: []error{
			errors.New("transient"),
			errors.New("transient again"),
			nil,
		},
		results: []service.DetectionResult{{}, {}, {FilteredCount: 1, Opportunities: []domain.Opportunity{sampleOpportunity("a", "16.70")}}},
	}
	w := NewDetectionWorkflow(detector, nil, nil, 3, time.Millisecond, slog.Default())
	w.sleep = instantSleep

	resp, err := w.Execute(context.Background(), DetectionRequest{CardName: "Charizard Base Set"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if detector.calls != 3 {
		t.Errorf("detector called %d times, want 3", detector.calls)
	}
	if resp.OpportunitiesFound != 1 {
		t.Errorf("opportunities_found = %d, want 1", resp.OpportunitiesFound)
	}
}

func TestExecute_ValidationErrorIsNotRetried(t *testing.T) {
	detector := &fakeDetector{
		errs: []error{domain.ErrValidation, nil},
	}
	w := NewDetectionWorkflow(detector, nil, nil, 3, time.Millisecond, slog.Default())
	w.sleep = instantSleep

	_, err := w.Execute(context.Background(), DetectionRequest{CardName: "Charizard Base Set"})
	if err == nil {
		t.Fatal("expected error")
	}
	if detector.calls != 1 {
		t.Errorf("detector called %d times, want 1 (no retry)", detector.calls)
	}
	if de := AsDetectionError(err); de.ErrorType != string(domain.ErrorTypeValidation) {
		t.Errorf("error_type = %s, want validation_error", de.ErrorType)
	}
}

func TestExecute_ExhaustedRetriesClassifyUpstream(t *testing.T) {
	upstream := errors.New("browse api down")
	detector := &fakeDetector{
		errs: []error{
			domain.ErrUpstream,
			upstream,
			domain.ErrUpstream,
		},
	}
	w := NewDetectionWorkflow(detector, nil, nil, 3, time.Millisecond, slog.Default())
	w.sleep = instantSleep

	_, err := w.Execute(context.Background(), DetectionRequest{CardName: "Charizard Base Set"})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if detector.calls != 3 {
		t.Errorf("detector called %d times, want 3", detector.calls)
	}
	if de := AsDetectionError(err); de.ErrorType != string(domain.ErrorTypeUpstream) {
		t.Errorf("error_type = %s, want upstream_error", de.ErrorType)
	}
}

func TestExecute_NotifiesWhenOpportunitiesFound(t *testing.T) {
	detector := &fakeDetector{results: []service.DetectionResult{
		{FilteredCount: 2, Opportunities: []domain.Opportunity{sampleOpportunity("a", "16.70")}},
	}}
	notifier := &fakeNotifier{}
	w := NewDetectionWorkflow(detector, nil, notifier, 1, time.Millisecond, slog.Default())

	if _, err := w.Execute(context.Background(), DetectionRequest{CardName: "Charizard Base Set"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(notifier.events) != 1 || notifier.events[0] != "arb_detected" {
		t.Fatalf("notifier events = %v", notifier.events)
	}
}

func TestExecute_NoNotificationWhenNothingFound(t *testing.T) {
	detector := &fakeDetector{results: []service.DetectionResult{{}}}
	notifier := &fakeNotifier{}
	insighter := &fakeInsighter{}
	w := NewDetectionWorkflow(detector, insighter, notifier, 1, time.Millisecond, slog.Default())

	resp, err := w.Execute(context.Background(), DetectionRequest{CardName: "Charizard Base Set"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(notifier.events) != 0 {
		t.Errorf("notifier events = %v, want none", notifier.events)
	}
	if insighter.calls != 0 {
		t.Errorf("insighter called %d times, want 0 for empty result", insighter.calls)
	}
	if resp.MarketInsights != nil {
		t.Errorf("market_insights = %+v, want nil", resp.MarketInsights)
	}
}
