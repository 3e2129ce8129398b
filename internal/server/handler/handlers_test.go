package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbone30/card-trader/internal/domain"
	"github.com/tbone30/card-trader/internal/pipeline"
)

type fakeOpportunityReader struct {
	opps       map[string]domain.Opportunity
	lastFilter domain.OpportunityFilter
}

func (f *fakeOpportunityReader) List(_ context.Context, filter domain.OpportunityFilter) ([]domain.Opportunity, error) {
	f.lastFilter = filter
	out := make([]domain.Opportunity, 0, len(f.opps))
	for _, o := range f.opps {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeOpportunityReader) Get(_ context.Context, id string) (domain.Opportunity, error) {
	o, ok := f.opps[id]
	if !ok {
		return domain.Opportunity{}, domain.ErrNotFound
	}
	return o, nil
}

func TestListOpportunities_ParsesFilters(t *testing.T) {
	reader := &fakeOpportunityReader{opps: map[string]domain.Opportunity{
		"a": {ID: "a", CardName: "Charizard Base Set"},
	}}
	h := NewOpportunityHandler(reader, slog.Default())

	req := httptest.NewRequest(http.MethodGet,
		"/api/opportunities?card_name=Charizard+Base+Set&min_profit_margin=0.2&max_risk_score=1.5&limit=10", nil)
	rec := httptest.NewRecorder()
	h.ListOpportunities(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	f := reader.lastFilter
	if f.CardName != "Charizard Base Set" {
		t.Errorf("card_name = %q", f.CardName)
	}
	if f.MinProfitMargin == nil || !f.MinProfitMargin.Equal(decimal.RequireFromString("0.2")) {
		t.Errorf("min_profit_margin = %v", f.MinProfitMargin)
	}
	if f.MaxRiskScore == nil || !f.MaxRiskScore.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("max_risk_score = %v", f.MaxRiskScore)
	}
	if f.Limit != 10 {
		t.Errorf("limit = %d", f.Limit)
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Count != 1 {
		t.Errorf("count = %d, want 1", body.Count)
	}
}

func TestListOpportunities_BadFilterIs400(t *testing.T) {
	h := NewOpportunityHandler(&fakeOpportunityReader{}, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities?min_profit_margin=abc", nil)
	rec := httptest.NewRecorder()
	h.ListOpportunities(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetOpportunity_NotFoundIs404(t *testing.T) {
	h := NewOpportunityHandler(&fakeOpportunityReader{opps: map[string]domain.Opportunity{}}, slog.Default())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/opportunities/{id}", h.GetOpportunity)

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities/nope", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

type fakeSearchRunner struct {
	mu    sync.Mutex
	cards []string
	done  chan struct{}
}

func (f *fakeSearchRunner) Execute(_ context.Context, req pipeline.DetectionRequest) (pipeline.DetectionResponse, error) {
	f.mu.Lock()
	f.cards = append(f.cards, req.CardName)
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return pipeline.DetectionResponse{CardName: req.CardName}, nil
}

type fakeCooldown struct {
	allowed bool
	keys    []string
}

func (f *fakeCooldown) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allowed, nil
}

func (f *fakeCooldown) Wait(context.Context, string) error { return nil }

func TestTriggerSearch_AcceptsAndRunsAsync(t *testing.T) {
	runner := &fakeSearchRunner{done: make(chan struct{})}
	cooldown := &fakeCooldown{allowed: true}
	h := NewSearchHandler(runner, cooldown, 5*time.Minute, slog.Default())

	req := httptest.NewRequest(http.MethodPost, "/api/search",
		strings.NewReader(`{"card_name":"Charizard Base Set"}`))
	rec := httptest.NewRecorder()
	h.TriggerSearch(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("async detection never ran")
	}
	if len(cooldown.keys) != 1 || cooldown.keys[0] != "search:charizard base set" {
		t.Errorf("cooldown keys = %v", cooldown.keys)
	}
}

func TestTriggerSearch_CooldownIs429(t *testing.T) {
	runner := &fakeSearchRunner{}
	h := NewSearchHandler(runner, &fakeCooldown{allowed: false}, 5*time.Minute, slog.Default())

	req := httptest.NewRequest(http.MethodPost, "/api/search",
		strings.NewReader(`{"card_name":"Charizard Base Set"}`))
	rec := httptest.NewRecorder()
	h.TriggerSearch(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if len(runner.cards) != 0 {
		t.Errorf("workflow ran despite cooldown: %v", runner.cards)
	}
}

func TestTriggerSearch_MissingCardNameIs400(t *testing.T) {
	h := NewSearchHandler(&fakeSearchRunner{}, nil, 5*time.Minute, slog.Default())

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.TriggerSearch(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

type fakeListingReader struct {
	listings []domain.Listing
}

func (f *fakeListingReader) ActiveListings(context.Context, string, time.Duration) ([]domain.Listing, error) {
	return f.listings, nil
}

func TestListListings_RequiresCardName(t *testing.T) {
	h := NewListingHandler(&fakeListingReader{}, time.Hour, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	rec := httptest.NewRecorder()
	h.ListListings(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListListings_ReturnsListings(t *testing.T) {
	h := NewListingHandler(&fakeListingReader{listings: []domain.Listing{
		{Platform: "ebay", ItemID: "1", CardName: "Charizard Base Set"},
	}}, time.Hour, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/api/listings?card_name=Charizard+Base+Set", nil)
	rec := httptest.NewRecorder()
	h.ListListings(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 {
		t.Errorf("count = %d, want 1", body.Count)
	}
}

type fakeInsightReader struct{}

func (fakeInsightReader) Insights(_ context.Context, cardName string) (domain.MarketInsights, error) {
	return domain.MarketInsights{CardName: cardName, TotalOpportunities: 4}, nil
}

func TestGetInsights_ReturnsAggregate(t *testing.T) {
	h := NewInsightHandler(fakeInsightReader{}, slog.Default())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/insights/{card}", h.GetInsights)

	req := httptest.NewRequest(http.MethodGet, "/api/insights/Charizard%20Base%20Set", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var insights domain.MarketInsights
	if err := json.Unmarshal(rec.Body.Bytes(), &insights); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if insights.CardName != "Charizard Base Set" || insights.TotalOpportunities != 4 {
		t.Errorf("insights = %+v", insights)
	}
}

type fakeListingCounter struct{ n int64 }

func (f fakeListingCounter) Count(context.Context) (int64, error) { return f.n, nil }

func TestGetStatus_ReportsModeAndCounts(t *testing.T) {
	h := NewStatusHandler("full", time.Now().Add(-time.Minute), fakeListingCounter{n: 42})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	h.GetStatus(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["mode"] != "full" {
		t.Errorf("mode = %v", body["mode"])
	}
	if body["listing_count"] != float64(42) {
		t.Errorf("listing_count = %v", body["listing_count"])
	}
	if body["uptime_seconds"].(float64) < 59 {
		t.Errorf("uptime = %v", body["uptime_seconds"])
	}
}
