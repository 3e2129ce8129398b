package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/tbone30/card-trader/internal/domain"
)

type fakeWriter struct {
	puts   map[string][]byte
	putErr error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{puts: map[string][]byte{}}
}

func (f *fakeWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.puts[path] = b
	return nil
}

func (f *fakeWriter) PutMultipart(context.Context, string, io.Reader, int64) error {
	return nil
}

type fakeOppArchiveStore struct {
	opps    []domain.Opportunity
	deleted bool
}

func (f *fakeOppArchiveStore) ListExpiredBefore(_ context.Context, _ time.Time, _ int) ([]domain.Opportunity, error) {
	return f.opps, nil
}

func (f *fakeOppArchiveStore) DeleteExpiredBefore(_ context.Context, _ time.Time) (int64, error) {
	f.deleted = true
	return int64(len(f.opps)), nil
}

type fakeListingArchiveStore struct {
	listings []domain.Listing
	deleted  bool
}

func (f *fakeListingArchiveStore) ListStale(_ context.Context, _ time.Time, _ int) ([]domain.Listing, error) {
	return f.listings, nil
}

func (f *fakeListingArchiveStore) DeleteStale(_ context.Context, _ time.Time) (int64, error) {
	f.deleted = true
	return int64(len(f.listings)), nil
}

func TestArchiveOpportunities_UploadsJSONLThenDeletes(t *testing.T) {
	writer := newFakeWriter()
	opps := &fakeOppArchiveStore{opps: []domain.Opportunity{
		{ID: "a", CardName: "Charizard Base Set", Status: domain.OpportunityStatusExpired},
		{ID: "b", CardName: "Charizard Base Set", Status: domain.OpportunityStatusExpired},
	}}
	a := NewArchiver(writer, opps, &fakeListingArchiveStore{}, nil)

	cutoff := time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)
	count, err := a.ArchiveOpportunities(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveOpportunities: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if !opps.deleted {
		t.Error("rows not deleted after upload")
	}

	body, ok := writer.puts["archive/opportunities/2026-02.jsonl"]
	if !ok {
		t.Fatalf("uploaded paths = %v, want month-partitioned key", keys(writer.puts))
	}

	// Every line must be standalone JSON.
	scanner := bufio.NewScanner(bytes.NewReader(body))
	lines := 0
	for scanner.Scan() {
		var opp domain.Opportunity
		if err := json.Unmarshal(scanner.Bytes(), &opp); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines, err)
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("jsonl lines = %d, want 2", lines)
	}
}

func TestArchiveOpportunities_EmptyIsNoop(t *testing.T) {
	writer := newFakeWriter()
	a := NewArchiver(writer, &fakeOppArchiveStore{}, &fakeListingArchiveStore{}, nil)

	count, err := a.ArchiveOpportunities(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveOpportunities: %v", err)
	}
	if count != 0 || len(writer.puts) != 0 {
		t.Errorf("count = %d, puts = %v, want nothing", count, keys(writer.puts))
	}
}

func TestArchiveListings_UploadFailureKeepsRows(t *testing.T) {
	writer := newFakeWriter()
	writer.putErr = errors.New("bucket gone")
	listings := &fakeListingArchiveStore{listings: []domain.Listing{{Platform: "ebay", ItemID: "1"}}}
	a := NewArchiver(writer, &fakeOppArchiveStore{}, listings, nil)

	if _, err := a.ArchiveListings(context.Background(), time.Now()); err == nil {
		t.Fatal("expected upload error")
	}
	if listings.deleted {
		t.Error("rows deleted despite failed upload")
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
