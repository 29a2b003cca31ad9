package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// ArchiveSource is the read side of a store the archiver exports from.
type ArchiveSource interface {
	ListQuotesBefore(ctx context.Context, before time.Time) ([]domain.Quote, error)
	ListOpportunitiesBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error)
	ListTradesBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
}

// QuotePruner deletes archived quotes from the primary store.
type QuotePruner interface {
	DeleteQuotesBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver exports old records as JSONL. Quotes are the only high-volume
// table and may be pruned after a successful upload; opportunities and
// trades stay in the primary store.
type Archiver struct {
	writer domain.BlobWriter
	source ArchiveSource
	audit  domain.AuditLogger
	pruner QuotePruner
}

// ArchiverOption configures an Archiver.
type ArchiverOption func(*Archiver)

// WithQuotePruning deletes quotes once they are uploaded.
func WithQuotePruning(p QuotePruner) ArchiverOption {
	return func(a *Archiver) { a.pruner = p }
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, source ArchiveSource, audit domain.AuditLogger, opts ...ArchiverOption) *Archiver {
	a := &Archiver{writer: writer, source: source, audit: audit}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ArchiveQuotes uploads quotes observed before the cutoff and, with pruning
// enabled, deletes them afterwards. Pruned runs write one object per run so
// an earlier upload for the same month is never overwritten.
func (a *Archiver) ArchiveQuotes(ctx context.Context, before time.Time) (int64, error) {
	quotes, err := a.source.ListQuotesBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive quotes query: %w", err)
	}
	path := archivePath("quotes", before)
	if a.pruner != nil {
		path = runPath("quotes", before)
	}
	n, err := upload(ctx, a, "quotes", path, before, quotes)
	if err != nil || n == 0 || a.pruner == nil {
		return n, err
	}
	if _, err := a.pruner.DeleteQuotesBefore(ctx, before); err != nil {
		return n, fmt.Errorf("s3blob: prune archived quotes: %w", err)
	}
	return n, nil
}

// ArchiveOpportunities uploads opportunities detected before the cutoff.
func (a *Archiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.source.ListOpportunitiesBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	return upload(ctx, a, "opportunities", archivePath("opportunities", before), before, opps)
}

// ArchiveTrades uploads trades started before the cutoff.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.source.ListTradesBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	return upload(ctx, a, "trades", archivePath("trades", before), before, trades)
}

func upload[T any](ctx context.Context, a *Archiver, kind, path string, before time.Time, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(records))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
			"path":   path,
			"count":  count,
			"bytes":  len(buf),
			"before": before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
		}
	}
	return count, nil
}

// archivePath partitions archives by the cutoff month:
//
//	archive/trades/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01"))
}

// runPath nests one object per run under the month:
//
//	archive/quotes/2025-01/20250114T030000Z.jsonl
func runPath(kind string, before time.Time) string {
	t := before.UTC()
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, t.Format("2006-01"), t.Format("20060102T150405Z"))
}

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

var _ domain.Archiver = (*Archiver)(nil)
