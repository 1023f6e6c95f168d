package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/auctionhouse/internal/crypto"
)

// maxSignedBody caps the body read for signature verification.
const maxSignedBody = 1 << 20

// Signatures returns middleware that authenticates mutating requests with a
// personal-sign signature over timestamp, method, path and body. The
// recovered account must match X-Sender and the timestamp must lie within
// skew of now. Safe methods pass through. A non-positive skew disables it.
func Signatures(skew time.Duration, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		if skew <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			ts, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get("X-Timestamp")), 10, 64)
			if err != nil {
				writeUnauthorized(w, "missing or invalid X-Timestamp")
				return
			}
			if d := now().Sub(time.Unix(ts, 0)); d > skew || d < -skew {
				writeUnauthorized(w, "request timestamp outside allowed skew")
				return
			}
			sig := r.Header.Get("X-Signature")
			if sig == "" {
				writeUnauthorized(w, "missing X-Signature")
				return
			}
			sender := r.Header.Get("X-Sender")
			if !common.IsHexAddress(sender) {
				writeUnauthorized(w, "missing or invalid X-Sender")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
			if err != nil {
				writeUnauthorized(w, "unreadable request body")
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			signer, err := crypto.RecoverMessage(crypto.RequestMessage(ts, r.Method, r.URL.Path, body), sig)
			if err != nil {
				writeUnauthorized(w, "invalid signature")
				return
			}
			if signer != common.HexToAddress(sender) {
				writeUnauthorized(w, "signature does not match sender")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
