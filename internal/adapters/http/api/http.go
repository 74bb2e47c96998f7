// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/floodwatch/internal/adapters/repository"
	"github.com/okian/floodwatch/internal/adapters/transport"
	"github.com/okian/floodwatch/internal/domain/reconcile"
	"github.com/okian/floodwatch/internal/domain/tamper"
	"github.com/okian/floodwatch/internal/domain/types"
)

// TamperDependencies covers the integrity endpoints.
type TamperDependencies interface {
	Analyze(ctx context.Context, id int64) (types.Analysis, error)
	Detections(ctx context.Context, id int64) ([]types.Detection, error)
	RunBatch(ctx context.Context, days int) (tamper.BatchResult, error)
	AgentBehavior(ctx context.Context, userID int64, window time.Duration) (tamper.AgentReport, error)
}

// SyncDependencies covers the reconciliation endpoints.
type SyncDependencies interface {
	SyncStatus(ctx context.Context) (reconcile.Status, error)
	ManualSync(ctx context.Context) (reconcile.TriggerResult, error)
	TriggerSync(ctx context.Context) (reconcile.TriggerResult, error)
	QuickSync(ctx context.Context) (reconcile.TriggerResult, error)
	MarkAllSynced(ctx context.Context) (int, error)
	SyncLogs(ctx context.Context, limit int) ([]types.SyncLog, error)
	TestConnection(ctx context.Context) (transport.ConnectionStatus, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	TamperDependencies
	SyncDependencies
}

// Server wires HTTP routes for the operator API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	tamperHandler *TamperHandler
	syncHandler   *SyncHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		tamperHandler: NewTamperHandler(deps),
		syncHandler:   NewSyncHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /submissions/{id}/analyze", MetricsMiddleware(s.tamperHandler.HandleAnalyze, "analyze"))
	mux.HandleFunc("GET /submissions/{id}/detections", MetricsMiddleware(s.tamperHandler.HandleDetections, "detections"))
	mux.HandleFunc("POST /tamper/batch", MetricsMiddleware(s.tamperHandler.HandleBatch, "tamper_batch"))
	mux.HandleFunc("GET /agents/{id}/behavior", MetricsMiddleware(s.tamperHandler.HandleAgentBehavior, "agent_behavior"))

	mux.HandleFunc("GET /sync/status", MetricsMiddleware(s.syncHandler.HandleStatus, "sync_status"))
	mux.HandleFunc("POST /sync/manual", MetricsMiddleware(s.syncHandler.HandleManual, "sync_manual"))
	mux.HandleFunc("POST /sync/trigger", MetricsMiddleware(s.syncHandler.HandleTrigger, "sync_trigger"))
	mux.HandleFunc("POST /sync/quick", MetricsMiddleware(s.syncHandler.HandleQuick, "sync_quick"))
	mux.HandleFunc("POST /sync/mark-all", MetricsMiddleware(s.syncHandler.HandleMarkAll, "sync_mark_all"))
	mux.HandleFunc("GET /sync/logs", MetricsMiddleware(s.syncHandler.HandleLogs, "sync_logs"))
	mux.HandleFunc("GET /sync/connection", MetricsMiddleware(s.syncHandler.HandleConnection, "sync_connection"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps err onto a status code.
func writeFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, tamper.ErrInvalidDays), errors.Is(err, repository.ErrInvalidLimit):
		badRequest(w, op, err)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, reconcile.ErrPassInProgress):
		writeError(w, http.StatusConflict, "sync_in_progress", WrapKind(op, ErrConflict, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrInternal, err))
	}
}

func badRequest(w http.ResponseWriter, op string, err error) {
	writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
}

// pathID parses the {id} wildcard as a positive integer.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}

// queryInt returns the named query parameter, or def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return v, nil
}
