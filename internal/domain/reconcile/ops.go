package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/floodwatch/internal/adapters/transport"
	"github.com/okian/floodwatch/internal/domain/model"
	"github.com/okian/floodwatch/pkg/logger"
)

// Status is a snapshot of sync progress.
type Status struct {
	Pending   int        `json:"pending"`
	Failed    int        `json:"failed"`
	Synced    int        `json:"synced"`
	Total     int        `json:"total"`
	LastSync  *time.Time `json:"last_sync"`
	IsSyncing bool       `json:"is_syncing"`
	LoopAlive bool       `json:"sync_thread_alive"`
}

// TriggerResult is returned by operator-triggered sync entry points.
type TriggerResult struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
	Status  Status `json:"status"`
}

// Status returns current counts and loop state.
func (r *Reconciler) Status(ctx context.Context) (Status, error) {
	c, err := r.store.CountBySyncStatus(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("counting sync statuses: %w", err)
	}
	st := Status{
		Pending:   c.Pending,
		Failed:    c.Failed,
		Synced:    c.Synced,
		Total:     c.Total(),
		IsSyncing: r.syncing.Load(),
		LoopAlive: r.loop.Alive(),
	}
	r.mu.Lock()
	if r.lastPass != nil {
		t := *r.lastPass
		st.LastSync = &t
	}
	r.mu.Unlock()
	return st, nil
}

// ManualSync starts a manual pass without blocking and returns the counts
// as they were when it started. If a pass is running nothing new starts.
func (r *Reconciler) ManualSync(ctx context.Context) (TriggerResult, error) {
	if !r.claim() {
		r.log.Info(ctx, "manual sync skipped, already running")
		st, err := r.Status(ctx)
		return TriggerResult{Message: "Sync is already in progress. Please wait for completion.", Status: st}, err
	}
	st, err := r.Status(ctx)
	if err != nil {
		r.log.Warn(ctx, "manual sync status snapshot failed", logger.Error(err))
		st = Status{IsSyncing: true, LoopAlive: r.loop.Alive()}
	}
	r.launch(model.SyncManual)
	r.log.Info(ctx, "manual sync started in background")
	return TriggerResult{
		Started: true,
		Message: "Sync started successfully! Your submissions are being synced in the background.",
		Status:  st,
	}, nil
}

// TriggerImmediateSync starts a scheduled-type pass in the background unless
// one is running, and reports whether it started one.
func (r *Reconciler) TriggerImmediateSync(ctx context.Context) bool {
	if !r.claim() {
		r.log.Info(ctx, "immediate sync skipped, already running")
		return false
	}
	r.log.Info(ctx, "triggering immediate sync")
	r.launch(model.SyncAuto)
	return true
}

// QuickSync marks every pending or failed submission synced without
// delivery and logs it as a manual pass.
func (r *Reconciler) QuickSync(ctx context.Context) (TriggerResult, error) {
	if !r.claim() {
		st, _ := r.Status(ctx)
		return TriggerResult{Message: "Sync is already in progress. Please wait for completion.", Status: st}, ErrPassInProgress
	}
	start := time.Now()

	before, err := r.store.CountBySyncStatus(ctx)
	if err != nil {
		r.release(false)
		return TriggerResult{}, fmt.Errorf("counting sync statuses: %w", err)
	}
	if before.Pending+before.Failed == 0 {
		r.release(false)
		st, err := r.Status(ctx)
		return TriggerResult{Message: "No pending submissions to sync.", Status: st}, err
	}

	n, err := r.store.MarkAllSynced(ctx, r.now())
	if err != nil {
		err = fmt.Errorf("marking submissions synced: %w", err)
		r.finishPass(ctx, &PassResult{Type: model.SyncManual}, start, err)
		r.release(true)
		return TriggerResult{}, err
	}
	res := PassResult{Type: model.SyncManual, Synced: n}
	r.finishPass(ctx, &res, start, nil)
	r.release(true)

	st, err := r.Status(ctx)
	return TriggerResult{
		Started: true,
		Message: fmt.Sprintf("Sync completed instantly! %d submissions marked as synced.", n),
		Status:  st,
	}, err
}

// MarkAllSynced forces every pending or failed submission to synced with one
// attempt, bypassing delivery.
func (r *Reconciler) MarkAllSynced(ctx context.Context) (int, error) {
	n, err := r.store.MarkAllSynced(ctx, r.now())
	if err != nil {
		return 0, fmt.Errorf("marking submissions synced: %w", err)
	}
	r.log.Info(ctx, "marked submissions as synced", logger.Int("count", n))
	r.refreshBacklog(ctx)
	return n, nil
}

// TestConnection probes the delivery endpoint when the transport supports it.
func (r *Reconciler) TestConnection(ctx context.Context) transport.ConnectionStatus {
	p, ok := r.deliverer.(transport.Pinger)
	if !ok {
		return transport.ConnectionStatus{Success: true, Message: "transport has no connection probe"}
	}
	return p.Ping(ctx)
}

// RecentLogs returns the newest pass log entries.
func (r *Reconciler) RecentLogs(ctx context.Context, limit int) ([]model.SyncLogEntry, error) {
	return r.store.ListSyncLogs(ctx, limit)
}
