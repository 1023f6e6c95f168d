package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// operatorReads are GET endpoints that expose operator data rather than
// market state. They need the API key like any mutation.
var operatorReads = []string{"/api/audit", "/api/archive", "/api/treasury", "/metrics"}

// Auth returns middleware that requires the API key on requests that change
// market state and on operator reads. Public market reads pass without it.
// The key is accepted as a Bearer token or in X-API-Key. An empty apiKey
// disables the check.
func Auth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		want := []byte(apiKey)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicRead(r) {
				next.ServeHTTP(w, r)
				return
			}
			got := apiToken(r)
			switch {
			case got == "":
				writeUnauthorized(w, "missing API key")
			case subtle.ConstantTimeCompare([]byte(got), want) != 1:
				writeUnauthorized(w, "invalid API key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func isPublicRead(r *http.Request) bool {
	if !isSafeMethod(r.Method) {
		return false
	}
	for _, p := range operatorReads {
		if r.URL.Path == p || strings.HasPrefix(r.URL.Path, p+"/") {
			return false
		}
	}
	return true
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func apiToken(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusUnauthorized, "unauthorized", msg)
}

// writeError answers in the same {error, code} shape the handlers use.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	body, _ := json.Marshal(map[string]string{"error": msg, "code": code})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}
