package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

var archiveKinds = map[string]bool{
	"settlements": true,
	"auctions":    true,
}

// ArchiveHandler serves the monthly settlement and auction exports.
type ArchiveHandler struct {
	reader domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler over the archive bucket.
func NewArchiveHandler(reader domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{reader: reader, logger: logHandler(logger, "archive")}
}

// ListArchive lists the exported months of one record kind.
// GET /api/archive/{kind}
func (h *ArchiveHandler) ListArchive(w http.ResponseWriter, r *http.Request) {
	kind := pathParam(r, "kind")
	if !archiveKinds[kind] {
		writeError(w, http.StatusBadRequest, "kind must be settlements or auctions")
		return
	}
	files, err := h.reader.List(r.Context(), "archive/"+kind+"/")
	if err != nil {
		writeDomainError(w, r, h.logger, "list archive", err)
		return
	}
	if files == nil {
		files = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "files": files})
}

// GetArchive streams one month file as newline-delimited JSON.
// GET /api/archive/{kind}/{month}
func (h *ArchiveHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	kind := pathParam(r, "kind")
	month := pathParam(r, "month")
	if !archiveKinds[kind] {
		writeError(w, http.StatusBadRequest, "kind must be settlements or auctions")
		return
	}
	if _, err := time.Parse("2006-01", month); err != nil {
		writeError(w, http.StatusBadRequest, "month must look like 2006-01")
		return
	}

	body, err := h.reader.Get(r.Context(), fmt.Sprintf("archive/%s/%s.jsonl", kind, month))
	if err != nil {
		writeDomainError(w, r, h.logger, "get archive", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive stream interrupted",
			slog.String("kind", kind),
			slog.String("month", month),
			slog.String("error", err.Error()),
		)
	}
}
