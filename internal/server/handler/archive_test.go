package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

type fakeReader struct {
	files map[string]string
}

func (f *fakeReader) Get(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (f *fakeReader) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p, data := range f.files {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (f *fakeReader) Exists(_ context.Context, path string) (bool, error) {
	_, ok := f.files[path]
	return ok, nil
}

func TestArchiveHandler(t *testing.T) {
	reader := &fakeReader{files: map[string]string{
		"archive/settlements/2026-09.jsonl": "{\"consignment_id\":1}\n",
	}}
	h := NewArchiveHandler(reader, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/archive/{kind}", h.ListArchive)
	mux.HandleFunc("GET /api/archive/{kind}/{month}", h.GetArchive)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/api/archive/settlements")
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Files []domain.BlobInfo `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Files, 1)

	rec = get("/api/archive/auctions")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"files":[]`)

	rec = get("/api/archive/settlements/2026-09")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	require.Equal(t, "{\"consignment_id\":1}\n", rec.Body.String())

	require.Equal(t, http.StatusNotFound, get("/api/archive/settlements/2026-10").Code)
	require.Equal(t, http.StatusBadRequest, get("/api/archive/orders").Code)
	require.Equal(t, http.StatusBadRequest, get("/api/archive/auctions/september").Code)
}
