package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

type fakeBlobArchiver struct {
	oppCutoff     time.Time
	listingCutoff time.Time
	oppErr        error
}

func (f *fakeBlobArchiver) ArchiveOpportunities(_ context.Context, before time.Time) (int64, error) {
	f.oppCutoff = before
	return 3, f.oppErr
}

func (f *fakeBlobArchiver) ArchiveListings(_ context.Context, before time.Time) (int64, error) {
	f.listingCutoff = before
	return 7, nil
}

func TestArchiverRun_CutoffFromRetention(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	blob := &fakeBlobArchiver{}
	a := NewArchiver(blob, 30, slog.Default())
	a.now = func() time.Time { return now }

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := now.Add(-30 * 24 * time.Hour)
	if !blob.oppCutoff.Equal(want) {
		t.Errorf("opportunity cutoff = %s, want %s", blob.oppCutoff, want)
	}
	if !blob.listingCutoff.Equal(want) {
		t.Errorf("listing cutoff = %s, want %s", blob.listingCutoff, want)
	}
}

func TestArchiverRun_PropagatesFailure(t *testing.T) {
	blob := &fakeBlobArchiver{oppErr: errors.New("s3 unreachable")}
	a := NewArchiver(blob, 30, slog.Default())

	if err := a.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	// Opportunities failed first, so listings must not have been touched.
	if !blob.listingCutoff.IsZero() {
		t.Error("listings archived despite opportunity archive failure")
	}
}
