package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// SettlementSource lists settlements recorded before a cutoff.
type SettlementSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Settlement, error)
}

// AuctionSource lists ended auctions whose window closed before a unix second.
type AuctionSource interface {
	ListEndedBefore(ctx context.Context, before int64) ([]domain.Auction, error)
}

// ArchiveImpl implements domain.Archiver. Records are grouped by the month
// they finished in and written to archive/{kind}/YYYY-MM.jsonl. Rows are
// never removed from the primary store, so a rerun rewrites each month file
// with the complete set and the export is idempotent.
type ArchiveImpl struct {
	writer      domain.BlobWriter
	settlements SettlementSource
	auctions    AuctionSource
	audit       domain.AuditStore
	logger      *slog.Logger
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	settlements SettlementSource,
	auctions AuctionSource,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:      writer,
		settlements: settlements,
		auctions:    auctions,
		audit:       audit,
		logger:      logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveSettlements exports every settlement recorded before the cutoff.
func (a *ArchiveImpl) ArchiveSettlements(ctx context.Context, before time.Time) (int64, error) {
	rows, err := a.settlements.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements query: %w", err)
	}
	months := groupByMonth(rows, func(s domain.Settlement) time.Time { return s.SettledAt })
	return a.export(ctx, "settlements", before, months)
}

// ArchiveAuctions exports every ended auction whose window closed before the
// cutoff.
func (a *ArchiveImpl) ArchiveAuctions(ctx context.Context, before time.Time) (int64, error) {
	rows, err := a.auctions.ListEndedBefore(ctx, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive auctions query: %w", err)
	}
	months := groupByMonth(rows, func(x domain.Auction) time.Time { return time.Unix(x.End(), 0) })
	return a.export(ctx, "auctions", before, months)
}

func (a *ArchiveImpl) export(ctx context.Context, kind string, before time.Time, months map[string][]byte) (int64, error) {
	if len(months) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(months))
	for m := range months {
		keys = append(keys, m)
	}
	sort.Strings(keys)

	var count int64
	paths := make([]string, 0, len(keys))
	for _, m := range keys {
		buf := months[m]
		path := archivePath(kind, m)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return count, fmt.Errorf("s3blob: archive %s upload %s: %w", kind, path, err)
		}
		count += int64(bytes.Count(buf, []byte{'\n'}))
		paths = append(paths, path)
	}

	a.logger.InfoContext(ctx, "archived records",
		slog.String("kind", kind),
		slog.Int64("count", count),
		slog.Int("files", len(paths)),
	)
	if err := a.audit.Log(ctx, "archive_"+kind, map[string]any{
		"paths":  paths,
		"count":  count,
		"before": before.UTC().Format(time.RFC3339),
	}); err != nil {
		a.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}
	return count, nil
}

// groupByMonth renders records as JSONL, one buffer per UTC month.
func groupByMonth[T any](records []T, at func(T) time.Time) map[string][]byte {
	bufs := make(map[string]*bytes.Buffer)
	for _, rec := range records {
		m := at(rec).UTC().Format("2006-01")
		buf, ok := bufs[m]
		if !ok {
			buf = &bytes.Buffer{}
			bufs[m] = buf
		}
		enc := json.NewEncoder(buf)
		enc.SetEscapeHTML(false)
		// Settlement and Auction hold only marshalable fields.
		_ = enc.Encode(rec)
	}
	out := make(map[string][]byte, len(bufs))
	for m, b := range bufs {
		out[m] = b.Bytes()
	}
	return out
}

// archivePath builds the object path for one month of one record kind:
//
//	archive/settlements/2026-09.jsonl
func archivePath(kind, month string) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, month)
}
