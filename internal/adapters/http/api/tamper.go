package api

import (
	"net/http"
	"time"
)

// TamperHandler serves analysis, batch and agent endpoints.
type TamperHandler struct {
	deps TamperDependencies
}

// NewTamperHandler creates a new tamper handler.
func NewTamperHandler(deps TamperDependencies) *TamperHandler {
	return &TamperHandler{deps: deps}
}

// HandleAnalyze handles POST /submissions/{id}/analyze.
func (h *TamperHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	const op = "api.analyze"
	id, err := pathID(r)
	if err != nil {
		badRequest(w, op, err)
		return
	}
	res, err := h.deps.Analyze(r.Context(), id)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleDetections handles GET /submissions/{id}/detections.
func (h *TamperHandler) HandleDetections(w http.ResponseWriter, r *http.Request) {
	const op = "api.detections"
	id, err := pathID(r)
	if err != nil {
		badRequest(w, op, err)
		return
	}
	dets, err := h.deps.Detections(r.Context(), id)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submission_id": id, "detections": dets})
}

// HandleBatch handles POST /tamper/batch?days=N. Without days the configured window is used.
func (h *TamperHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.tamper_batch"
	days, err := queryInt(r, "days", 0)
	if err != nil {
		badRequest(w, op, err)
		return
	}
	res, err := h.deps.RunBatch(r.Context(), days)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleAgentBehavior handles GET /agents/{id}/behavior?window_hours=N.
func (h *TamperHandler) HandleAgentBehavior(w http.ResponseWriter, r *http.Request) {
	const op = "api.agent_behavior"
	id, err := pathID(r)
	if err != nil {
		badRequest(w, op, err)
		return
	}
	hours, err := queryInt(r, "window_hours", 0)
	if err != nil {
		badRequest(w, op, err)
		return
	}
	rep, err := h.deps.AgentBehavior(r.Context(), id, time.Duration(hours)*time.Hour)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
