package handler

import (
	"net/http"
	"time"
)

// StatusInfo carries the static identity of the running daemon.
type StatusInfo struct {
	Mode         string
	SettlePolicy string
	NoncePolicy  string
	Owner        string
	StoreBackend string
}

// StatusHandler serves the daemon status for dashboards and operators.
type StatusHandler struct {
	info    StatusInfo
	started time.Time
}

// NewStatusHandler creates a StatusHandler. Uptime is measured from the call.
func NewStatusHandler(info StatusInfo) *StatusHandler {
	return &StatusHandler{info: info, started: time.Now().UTC()}
}

// GetStatus responds with the run mode, engine policies, and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.info.Mode,
		"settle_policy":  h.info.SettlePolicy,
		"nonce_policy":   h.info.NoncePolicy,
		"owner":          h.info.Owner,
		"store_backend":  h.info.StoreBackend,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
