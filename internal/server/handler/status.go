package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the running mode and backends for operators.
type StatusHandler struct {
	Mode    string
	Store   string
	Lock    string
	Config  MarketConfigService
	started time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode, store, lock string, config MarketConfigService) *StatusHandler {
	return &StatusHandler{Mode: mode, Store: store, Lock: lock, Config: config, started: time.Now()}
}

// GetStatus responds with the current mode, backends and config version.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":           h.Mode,
		"store":          h.Store,
		"lock":           h.Lock,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	}
	if h.Config != nil {
		body["config_version"] = h.Config.Snapshot().Version
	}
	writeJSON(w, http.StatusOK, body)
}
