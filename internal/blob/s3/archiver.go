package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tbone30/card-trader/internal/domain"
)

// archiveBatchSize bounds how many rows one archive run exports.
const archiveBatchSize = 10000

// OpportunityArchiveStore is the slice of the opportunity store the archiver
// needs: reading expired rows and deleting them after a verified upload.
type OpportunityArchiveStore interface {
	ListExpiredBefore(ctx context.Context, before time.Time, limit int) ([]domain.Opportunity, error)
	DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error)
}

// ListingArchiveStore is the slice of the listing store the archiver needs.
type ListingArchiveStore interface {
	ListStale(ctx context.Context, before time.Time, limit int) ([]domain.Listing, error)
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveImpl implements domain.Archiver by exporting cold rows to JSONL
// files in object storage and deleting them from the primary store only after
// the upload succeeded.
type ArchiveImpl struct {
	writer        domain.BlobWriter
	opportunities OpportunityArchiveStore
	listings      ListingArchiveStore
	audit         domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl. The audit store is optional.
func NewArchiver(
	writer domain.BlobWriter,
	opportunities OpportunityArchiveStore,
	listings ListingArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:        writer,
		opportunities: opportunities,
		listings:      listings,
		audit:         audit,
	}
}

// ArchiveOpportunities exports every expired opportunity older than the
// cutoff to archive/opportunities/YYYY-MM.jsonl and then deletes the exported
// rows. Returns the number of rows archived.
func (a *ArchiveImpl) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.opportunities.ListExpiredBefore(ctx, before, archiveBatchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	if len(opps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(opps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities marshal: %w", err)
	}

	path := archivePath("opportunities", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities upload: %w", err)
	}

	// The upload is durable; now the rows can leave the hot store.
	deleted, err := a.opportunities.DeleteExpiredBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities delete: %w", err)
	}

	a.logArchive(ctx, "archive.opportunities", path, deleted, before)
	return deleted, nil
}

// ArchiveListings exports every stale listing older than the cutoff to
// archive/listings/YYYY-MM.jsonl and then deletes the exported rows.
func (a *ArchiveImpl) ArchiveListings(ctx context.Context, before time.Time) (int64, error) {
	listings, err := a.listings.ListStale(ctx, before, archiveBatchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive listings query: %w", err)
	}
	if len(listings) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(listings)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive listings marshal: %w", err)
	}

	path := archivePath("listings", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive listings upload: %w", err)
	}

	deleted, err := a.listings.DeleteStale(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive listings delete: %w", err)
	}

	a.logArchive(ctx, "archive.listings", path, deleted, before)
	return deleted, nil
}

func (a *ArchiveImpl) logArchive(ctx context.Context, event, path string, count int64, before time.Time) {
	if a.audit == nil {
		return
	}
	// Audit failures never roll back an archive that already happened.
	_ = a.audit.Log(ctx, event, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	})
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/opportunities/2026-02.jsonl
//	archive/listings/2026-02.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
