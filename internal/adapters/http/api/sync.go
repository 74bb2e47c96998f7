package api

import (
	"net/http"
)

const defaultLogLimit = 10

// SyncHandler serves the reconciliation endpoints.
type SyncHandler struct {
	deps SyncDependencies
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(deps SyncDependencies) *SyncHandler {
	return &SyncHandler{deps: deps}
}

// HandleStatus handles GET /sync/status.
func (h *SyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.SyncStatus(r.Context())
	if err != nil {
		writeFailure(w, "api.sync_status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleManual handles POST /sync/manual. The pass runs in the background.
func (h *SyncHandler) HandleManual(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.ManualSync(r.Context())
	if err != nil {
		writeFailure(w, "api.sync_manual", err)
		return
	}
	status := http.StatusAccepted
	if !res.Started {
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}

// HandleTrigger handles POST /sync/trigger.
func (h *SyncHandler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.TriggerSync(r.Context())
	if err != nil {
		writeFailure(w, "api.sync_trigger", err)
		return
	}
	status := http.StatusAccepted
	if !res.Started {
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}

// HandleQuick handles POST /sync/quick.
func (h *SyncHandler) HandleQuick(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.QuickSync(r.Context())
	if err != nil {
		writeFailure(w, "api.sync_quick", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleMarkAll handles POST /sync/mark-all.
func (h *SyncHandler) HandleMarkAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.MarkAllSynced(r.Context())
	if err != nil {
		writeFailure(w, "api.sync_mark_all", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}

// HandleLogs handles GET /sync/logs?limit=N.
func (h *SyncHandler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	const op = "api.sync_logs"
	limit, err := queryInt(r, "limit", defaultLogLimit)
	if err != nil {
		badRequest(w, op, err)
		return
	}
	logs, err := h.deps.SyncLogs(r.Context(), limit)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// HandleConnection handles GET /sync/connection.
func (h *SyncHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.TestConnection(r.Context())
	if err != nil {
		writeFailure(w, "api.sync_connection", err)
		return
	}
	status := http.StatusOK
	if !st.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, st)
}
