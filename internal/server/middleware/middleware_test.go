package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	memcache "github.com/alanyoungcy/auctionhouse/internal/cache/memory"
	"github.com/alanyoungcy/auctionhouse/internal/crypto"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

// echo writes back the request body so tests can see it survived the
// signature check.
var echo = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Write(body)
})

func TestSignatures(t *testing.T) {
	signer, err := crypto.NewSigner(testKey)
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	h := Signatures(time.Minute, func() time.Time { return now })(echo)

	signed := func(ts int64, body string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/auctions/1/bids", strings.NewReader(body))
		sig, err := signer.SignRequest(ts, http.MethodPost, "/api/auctions/1/bids", []byte(body))
		require.NoError(t, err)
		req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
		req.Header.Set("X-Signature", sig)
		req.Header.Set("X-Sender", signer.Address().Hex())
		return req
	}

	t.Run("valid", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, signed(now.Unix(), `{"value":100}`))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, `{"value":100}`, rec.Body.String())
	})

	t.Run("stale", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, signed(now.Add(-2*time.Minute).Unix(), `{}`))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("tampered body", func(t *testing.T) {
		req := signed(now.Unix(), `{"value":100}`)
		req.Body = io.NopCloser(strings.NewReader(`{"value":1}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("other sender", func(t *testing.T) {
		req := signed(now.Unix(), `{}`)
		req.Header.Set("X-Sender", "0x00000000000000000000000000000000000000a1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Body.String(), "does not match")
	})

	t.Run("reads pass", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auctions/1", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Signatures(0, nil)(echo).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("a")))
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAuth(t *testing.T) {
	h := Auth("secret")(echo)
	serve := func(method, path string, header ...string) int {
		req := httptest.NewRequest(method, path, nil)
		for i := 0; i+1 < len(header); i += 2 {
			req.Header.Set(header[i], header[i+1])
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, serve(http.MethodGet, "/api/auctions/1"))
	require.Equal(t, http.StatusUnauthorized, serve(http.MethodPost, "/api/auctions/1/bids"))
	require.Equal(t, http.StatusUnauthorized, serve(http.MethodGet, "/api/audit"))
	require.Equal(t, http.StatusUnauthorized, serve(http.MethodGet, "/api/archive/settlements"))
	require.Equal(t, http.StatusOK, serve(http.MethodPost, "/api/auctions/1/bids", "Authorization", "Bearer secret"))
	require.Equal(t, http.StatusOK, serve(http.MethodGet, "/metrics", "X-API-Key", "secret"))
	require.Equal(t, http.StatusUnauthorized, serve(http.MethodPut, "/api/market/config", "X-API-Key", "wrong"))

	require.Equal(t, http.StatusOK, httpCode(Auth("")(echo)))
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(memcache.NewRateLimiter(0, 0), 2, time.Minute)(echo)

	serve := func(method, ip, sender string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		if sender != "" {
			req.Header.Set("X-Sender", sender)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	require.Equal(t, http.StatusOK, serve(http.MethodGet, "1.1.1.1", "").Code)
	require.Equal(t, http.StatusOK, serve(http.MethodGet, "1.1.1.1", "").Code)
	limited := serve(http.MethodGet, "1.1.1.1", "")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	require.Equal(t, "60", limited.Header().Get("Retry-After"))
	require.Contains(t, limited.Body.String(), "rate_limited")
	require.Equal(t, http.StatusOK, serve(http.MethodGet, "2.2.2.2", "").Code)

	// Mutations count against the sender whatever address they come from.
	bidder := "0x00000000000000000000000000000000000000b1"
	require.Equal(t, http.StatusOK, serve(http.MethodPost, "3.3.3.3", bidder).Code)
	require.Equal(t, http.StatusOK, serve(http.MethodPost, "4.4.4.4", bidder).Code)
	require.Equal(t, http.StatusTooManyRequests, serve(http.MethodPost, "5.5.5.5", bidder).Code)
	require.Equal(t, http.StatusOK, serve(http.MethodPost, "5.5.5.5", "").Code)

	require.Equal(t, http.StatusOK, httpCode(RateLimit(nil, 2, time.Minute)(echo)))
}

func TestLoggingSetsRequestID(t *testing.T) {
	h := Logging(slog.New(slog.NewTextHandler(io.Discard, nil)))(echo)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://market.example"})(echo)

	req := httptest.NewRequest(http.MethodOptions, "/api/auctions/1/bids", nil)
	req.Header.Set("Origin", "https://market.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://market.example", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Signature")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func httpCode(h http.Handler) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec.Code
}
