package s3blob

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/whalebridge/internal/domain"
)

// archiveBatchSize caps how many rows a single archive object holds. Larger
// backlogs produce multiple objects per run.
const archiveBatchSize = 5000

// ArchiveImpl implements domain.Archiver by draining aged rows from the
// domain stores, serializing them to gzipped JSONL, uploading the result to
// S3, and only then deleting the rows from the primary store. A failed upload
// leaves the rows in place so the next run retries them.
//
// Only terminal exposure rows (rejected/failed) are ever eligible; committed
// exposure stays in the database for the lifetime of the position.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	exposure  domain.ExposureStore
	decisions domain.DecisionStore
	audit     domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	exposure domain.ExposureStore,
	decisions domain.DecisionStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		exposure:  exposure,
		decisions: decisions,
		audit:     audit,
	}
}

// ArchiveExposure drains terminal exposure records last touched before the
// cutoff, batch by batch, and returns the total number archived.
func (a *ArchiveImpl) ArchiveExposure(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for {
		records, err := a.exposure.ListTerminalBefore(ctx, before, archiveBatchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive exposure query: %w", err)
		}
		if len(records) == 0 {
			return total, nil
		}

		path := archivePath("exposure", time.Now().UTC())
		if err := uploadJSONL(ctx, a.writer, path, records); err != nil {
			return total, fmt.Errorf("s3blob: archive exposure: %w", err)
		}

		ids := make([]string, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		deleted, err := a.exposure.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive exposure delete: %w", err)
		}
		total += deleted

		if err := a.logArchived(ctx, "archive.exposure", path, deleted, before); err != nil {
			return total, err
		}

		if len(records) < archiveBatchSize {
			return total, nil
		}
	}
}

// ArchiveDecisions drains decision log entries decided before the cutoff and
// returns the total number archived.
func (a *ArchiveImpl) ArchiveDecisions(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for {
		decisions, err := a.decisions.ListBefore(ctx, before, archiveBatchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive decisions query: %w", err)
		}
		if len(decisions) == 0 {
			return total, nil
		}

		path := archivePath("decisions", time.Now().UTC())
		if err := uploadJSONL(ctx, a.writer, path, decisions); err != nil {
			return total, fmt.Errorf("s3blob: archive decisions: %w", err)
		}

		ids := make([]string, len(decisions))
		for i, d := range decisions {
			ids[i] = d.ID
		}
		deleted, err := a.decisions.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive decisions delete: %w", err)
		}
		total += deleted

		if err := a.logArchived(ctx, "archive.decisions", path, deleted, before); err != nil {
			return total, err
		}

		if len(decisions) < archiveBatchSize {
			return total, nil
		}
	}
}

// ArchiveAudit drains audit log entries created before the cutoff and
// returns the total number archived.
func (a *ArchiveImpl) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for {
		entries, err := a.audit.ListBefore(ctx, before, archiveBatchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive audit query: %w", err)
		}
		if len(entries) == 0 {
			return total, nil
		}

		path := archivePath("audit", time.Now().UTC())
		if err := uploadJSONL(ctx, a.writer, path, entries); err != nil {
			return total, fmt.Errorf("s3blob: archive audit: %w", err)
		}

		ids := make([]int64, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		deleted, err := a.audit.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive audit delete: %w", err)
		}
		total += deleted

		// The archival of the audit log is itself audited; the new entry
		// lands after the cutoff so it survives this run.
		if err := a.logArchived(ctx, "archive.audit", path, deleted, before); err != nil {
			return total, err
		}

		if len(entries) < archiveBatchSize {
			return total, nil
		}
	}
}

// uploadJSONL serializes the records to gzipped JSONL and uploads the object.
func uploadJSONL[T any](ctx context.Context, w domain.BlobWriter, path string, records []T) error {
	buf, err := marshalJSONLGz(records)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := w.Put(ctx, path, bytes.NewReader(buf), "application/gzip"); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}

func (a *ArchiveImpl) logArchived(ctx context.Context, event, path string, count int64, before time.Time) error {
	err := a.audit.Log(ctx, event, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("s3blob: %s audit log: %w", event, err)
	}
	return nil
}

// archivePath builds the S3 key for an archive object, partitioned by the
// run date with a timestamp suffix so repeated runs never collide.
//
//	archive/exposure/2026/01/15/1768464000.jsonl.gz
func archivePath(kind string, at time.Time) string {
	return fmt.Sprintf("archive/%s/%s/%d.jsonl.gz", kind, at.Format("2006/01/02"), at.Unix())
}

// marshalJSONLGz serialises a slice as newline-delimited JSON and gzips it.
func marshalJSONLGz[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)

	enc := json.NewEncoder(gz)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}

	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*ArchiveImpl)(nil)
