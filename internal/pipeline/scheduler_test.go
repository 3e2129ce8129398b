package pipeline

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/tbone30/card-trader/internal/service"
)

type fakeCounter struct {
	counts map[string]int64
	asked  []string
}

func (f *fakeCounter) ActiveCount(_ context.Context, cardName string) (int64, error) {
	f.asked = append(f.asked, cardName)
	return f.counts[cardName], nil
}

type fakeExpirer struct {
	sweeps int
}

func (f *fakeExpirer) SweepOnce(context.Context) (int64, error) {
	f.sweeps++
	return 0, nil
}

// recordingDetector records which cards were detected.
type recordingDetector struct {
	cards []string
}

func (r *recordingDetector) Detect(_ context.Context, cardName string) (service.DetectionResult, error) {
	r.cards = append(r.cards, cardName)
	return service.DetectionResult{CardName: cardName}, nil
}

func testScheduler(detector Detector, counter ActiveCounter, expirer Expirer, cfg SchedulerConfig) *Scheduler {
	workflow := NewDetectionWorkflow(detector, nil, nil, 1, time.Millisecond, slog.Default())
	s := NewScheduler(workflow, counter, expirer, cfg, slog.Default())
	s.sleep = instantSleep
	return s
}

func TestHourlyPass_TriggersOnlyUnderCoveredCards(t *testing.T) {
	detector := &recordingDetector{}
	counter := &fakeCounter{counts: map[string]int64{
		"Charizard Base Set":  5, // covered
		"Pikachu Illustrator": 0, // under floor
		"Black Lotus Alpha":   1, // under floor
		"Mox Ruby Alpha":      0, // outside top N, never checked
	}}
	expirer := &fakeExpirer{}

	s := testScheduler(detector, counter, expirer, SchedulerConfig{
		PriorityCards:          []string{"Charizard Base Set", "Pikachu Illustrator", "Black Lotus Alpha", "Mox Ruby Alpha"},
		HourlyTopN:             3,
		MinActiveOpportunities: 2,
	})

	if err := s.HourlyPass(context.Background()); err != nil {
		t.Fatalf("HourlyPass: %v", err)
	}

	if len(counter.asked) != 3 {
		t.Errorf("checked %d cards, want top 3: %v", len(counter.asked), counter.asked)
	}
	want := []string{"Pikachu Illustrator", "Black Lotus Alpha"}
	if len(detector.cards) != len(want) {
		t.Fatalf("detected %v, want %v", detector.cards, want)
	}
	for i, card := range want {
		if detector.cards[i] != card {
			t.Errorf("detected[%d] = %s, want %s", i, detector.cards[i], card)
		}
	}
	if expirer.sweeps != 1 {
		t.Errorf("sweeps = %d, want 1", expirer.sweeps)
	}
}

func TestPriorityPass_RunsTopNUnconditionally(t *testing.T) {
	detector := &recordingDetector{}

	s := testScheduler(detector, &fakeCounter{}, nil, SchedulerConfig{
		PriorityCards: []string{"a", "b", "c", "d", "e", "f"},
		PriorityTopN:  5,
	})

	if err := s.PriorityPass(context.Background()); err != nil {
		t.Fatalf("PriorityPass: %v", err)
	}
	if len(detector.cards) != 5 {
		t.Errorf("detected %d cards, want top 5: %v", len(detector.cards), detector.cards)
	}
}

func TestDailyPass_CoversWholePopularList(t *testing.T) {
	detector := &recordingDetector{}

	s := testScheduler(detector, &fakeCounter{}, nil, SchedulerConfig{
		PopularCards: []string{"a", "b", "c"},
	})

	if err := s.DailyPass(context.Background()); err != nil {
		t.Fatalf("DailyPass: %v", err)
	}
	if len(detector.cards) != 3 {
		t.Errorf("detected %d cards, want all 3", len(detector.cards))
	}
}

func TestDailyPass_StopsOnCancelledContext(t *testing.T) {
	detector := &recordingDetector{}
	s := testScheduler(detector, &fakeCounter{}, nil, SchedulerConfig{
		PopularCards: []string{"a", "b", "c"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.DailyPass(ctx); err == nil {
		t.Fatal("expected context error")
	}
	if len(detector.cards) != 0 {
		t.Errorf("detected %v on cancelled context", detector.cards)
	}
}
