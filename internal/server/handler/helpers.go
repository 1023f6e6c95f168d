package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// Headers carrying the calling account.
const (
	HeaderSender = "X-Sender"
	HeaderOrigin = "X-Origin"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorBody is the response for a market failure.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps a failure kind to its HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindInsufficientValue:
		return http.StatusPaymentRequired
	case domain.KindResourceUnavailable:
		return http.StatusServiceUnavailable
	case domain.KindPaymentFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeDomainError reports err to the client. Market failures carry their
// reason and code; anything else is logged and hidden behind a 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "not found")
			return
		case errors.Is(err, domain.ErrLockHeld):
			writeError(w, http.StatusConflict, "consignment busy, retry")
			return
		case errors.Is(err, domain.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, op+" failed")
		return
	}
	writeJSON(w, statusFor(kind), errorBody{
		Error: err.Error(),
		Code:  domain.CodeOf(err),
		Kind:  string(kind),
	})
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0. since/until accept RFC 3339.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	opts := domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.Since = &t
		}
	}
	if v := q.Get("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.Until = &t
		}
	}
	opts.Event = q.Get("event")
	if v := q.Get("consignment_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			opts.ConsignmentID = &id
		}
	}
	return opts
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// consignmentID parses the {id} path parameter.
func consignmentID(r *http.Request) (uint64, error) {
	raw := pathParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid consignment id %q", raw)
	}
	return id, nil
}

// parseAddress parses a hex account address, rejecting malformed input.
func parseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

// callerFrom resolves the calling account from X-Sender and X-Origin. The
// origin defaults to the sender.
func callerFrom(r *http.Request) (domain.Caller, error) {
	raw := r.Header.Get(HeaderSender)
	if raw == "" {
		return domain.Caller{}, fmt.Errorf("missing %s header", HeaderSender)
	}
	sender, err := parseAddress(raw)
	if err != nil {
		return domain.Caller{}, err
	}
	caller := domain.NewCaller(sender)
	if raw := r.Header.Get(HeaderOrigin); raw != "" {
		origin, err := parseAddress(raw)
		if err != nil {
			return domain.Caller{}, err
		}
		caller.Origin = origin
	}
	return caller, nil
}

// mutation resolves the caller and consignment id shared by every write.
// It writes the error response itself and reports whether to continue.
func mutation(w http.ResponseWriter, r *http.Request) (domain.Caller, uint64, bool) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return domain.Caller{}, 0, false
	}
	id, err := consignmentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return domain.Caller{}, 0, false
	}
	return caller, id, true
}

// decodeBody decodes a JSON request body into dst, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
