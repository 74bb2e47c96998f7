// Package reconcile moves submissions from pending or failed toward synced.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/floodwatch/internal/adapters/lock"
	"github.com/okian/floodwatch/internal/adapters/mq/worker"
	"github.com/okian/floodwatch/internal/adapters/repository"
	"github.com/okian/floodwatch/internal/adapters/transport"
	"github.com/okian/floodwatch/internal/domain/model"
	"github.com/okian/floodwatch/pkg/logger"
	"github.com/okian/floodwatch/pkg/metrics"
)

// Store is the persistence the reconciler needs.
type Store interface {
	ListSubmissions(ctx context.Context, q repository.Query) ([]model.Submission, error)
	CountBySyncStatus(ctx context.Context) (repository.SyncCounts, error)
	RecordSyncAttempt(ctx context.Context, att repository.SyncAttempt) error
	MarkAllSynced(ctx context.Context, at time.Time) (int, error)
	AppendSyncLog(ctx context.Context, entry *model.SyncLogEntry) error
	ListSyncLogs(ctx context.Context, limit int) ([]model.SyncLogEntry, error)
}

// PassResult summarizes one reconciliation pass.
type PassResult struct {
	Type     model.SyncType `json:"type"`
	Synced   int            `json:"synced"`
	Failed   int            `json:"failed"`
	Duration time.Duration  `json:"duration"`
	// Skipped is set when another pass held the flag or the shared lock.
	Skipped bool `json:"skipped"`
	// Interrupted is set when shutdown arrived between items.
	Interrupted bool `json:"interrupted"`
}

// Reconciler runs at most one sync pass at a time. Passes may be started by
// the background loop or on demand.
type Reconciler struct {
	store     Store
	deliverer transport.Deliverer
	photos    transport.PhotoTransfer
	locker    lock.Locker
	log       logger.Logger
	now       func() time.Time

	itemPause   time.Duration
	maxAttempts int
	interval    time.Duration
	backoff     time.Duration

	syncing  atomic.Bool
	mu       sync.Mutex
	lastPass *time.Time
	loop     *worker.Periodic

	// passes launched without blocking the caller run under base
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a reconciler. photos may be nil when photos are not transferred.
func New(store Store, deliverer transport.Deliverer, photos transport.PhotoTransfer, opts ...Option) *Reconciler {
	base, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		store:     store,
		deliverer: deliverer,
		photos:    photos,
		log:       logger.Nop(),
		now:       time.Now,
		itemPause: 100 * time.Millisecond,
		interval:  300 * time.Second,
		backoff:   60 * time.Second,
		base:      base,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.loop = worker.NewPeriodic(r.scheduledPass,
		worker.WithName("sync-loop"),
		worker.WithLogger(r.log),
		worker.WithInterval(r.interval),
		worker.WithErrorBackoff(r.backoff))
	return r
}

// SyncOne attempts delivery of sub and its photo and commits the outcome.
// It reports whether the submission is now synced. Faults never propagate.
// The attempt runs to completion even if ctx is cancelled.
func (r *Reconciler) SyncOne(ctx context.Context, sub *model.Submission) bool {
	synced, _ := r.syncOne(ctx, sub)
	return synced
}

// syncOne is SyncOne that also reports whether this attempt was committed.
// An attempt that lost to a concurrent bulk mark is not.
func (r *Reconciler) syncOne(ctx context.Context, sub *model.Submission) (synced, committed bool) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	reason := r.attempt(ctx, sub)
	status := model.SyncSynced
	var errMsg *string
	if reason != "" {
		status = model.SyncFailed
		errMsg = &reason
	}

	at := r.now()
	err := r.store.RecordSyncAttempt(ctx, repository.SyncAttempt{
		SubmissionID: sub.ID,
		Status:       status,
		Error:        errMsg,
		At:           at,
	})
	if errors.Is(err, repository.ErrAlreadySynced) {
		metrics.RecordSyncItem("superseded", float64(time.Since(start).Milliseconds()))
		r.log.Info(ctx, "submission synced elsewhere, attempt discarded",
			logger.Int64("submission_id", sub.ID))
		sub.SyncStatus = model.SyncSynced
		return true, false
	}
	if err != nil {
		metrics.RecordSyncItem("error", float64(time.Since(start).Milliseconds()))
		r.log.Error(ctx, "recording sync attempt failed",
			logger.Int64("submission_id", sub.ID), logger.Error(err))
		return false, true
	}

	sub.SyncStatus = status
	sub.SyncAttempts++
	sub.LastSyncAttempt = &at
	sub.SyncError = errMsg
	metrics.RecordSyncItem(string(status), float64(time.Since(start).Milliseconds()))

	if status == model.SyncFailed {
		r.log.Error(ctx, "submission sync failed",
			logger.Int64("submission_id", sub.ID),
			logger.Int("attempts", sub.SyncAttempts),
			logger.String("reason", reason))
		return false, true
	}
	r.log.Info(ctx, "submission synced",
		logger.Int64("submission_id", sub.ID),
		logger.Float64("tamper_score", sub.TamperScore))
	return true, true
}

// attempt returns the failure reason, or "" on success.
func (r *Reconciler) attempt(ctx context.Context, sub *model.Submission) (reason string) {
	defer func() {
		if p := recover(); p != nil {
			reason = fmt.Sprintf("Sync error: %v", p)
		}
	}()

	if _, err := r.deliverer.Deliver(ctx, model.NewSyncPayload(sub)); err != nil {
		return err.Error()
	}
	if r.photos == nil || sub.PhotoFilename == "" {
		return ""
	}
	if err := r.photos.TransferPhoto(ctx, sub.PhotoFilename); err != nil {
		metrics.RecordPhotoTransfer("failed")
		return fmt.Sprintf("Photo upload failed: %v", err)
	}
	metrics.RecordPhotoTransfer("ok")
	return ""
}

// AutoSyncPending runs one scheduled pass. If a pass is already running it
// returns a skipped result without touching any submission.
func (r *Reconciler) AutoSyncPending(ctx context.Context) (PassResult, error) {
	return r.RunPass(ctx, model.SyncAuto)
}

// RunPass runs one pass of the given type and blocks until it completes.
func (r *Reconciler) RunPass(ctx context.Context, typ model.SyncType) (PassResult, error) {
	if !r.claim() {
		r.log.Debug(ctx, "sync pass skipped, already running", logger.String("type", string(typ)))
		metrics.RecordSyncPass(string(typ), "skipped", 0)
		return PassResult{Type: typ, Skipped: true}, nil
	}
	return r.runClaimed(ctx, typ)
}

func (r *Reconciler) claim() bool {
	if !r.syncing.CompareAndSwap(false, true) {
		return false
	}
	metrics.UpdateSyncInProgress(true)
	return true
}

// release clears the pass flag, stamping the last-pass time when stamp is set.
func (r *Reconciler) release(stamp bool) {
	if stamp {
		now := r.now()
		r.mu.Lock()
		r.lastPass = &now
		r.mu.Unlock()
		metrics.UpdateSyncLastPass(now.Unix())
	}
	r.syncing.Store(false)
	metrics.UpdateSyncInProgress(false)
}

// runClaimed executes a pass for a caller that already holds the flag.
func (r *Reconciler) runClaimed(ctx context.Context, typ model.SyncType) (res PassResult, err error) {
	start := time.Now()
	res.Type = typ
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrPassPanicked, p)
			r.finishPass(ctx, &res, start, err)
		}
		r.release(!res.Skipped)
	}()

	var lease lock.Lease
	if r.locker != nil {
		var lerr error
		lease, lerr = r.locker.Acquire(ctx)
		if errors.Is(lerr, lock.ErrNotObtained) {
			r.log.Debug(ctx, "sync pass skipped, lock held by another instance")
			metrics.RecordSyncPass(string(typ), "skipped", 0)
			res.Skipped = true
			return res, nil
		}
		if lerr != nil {
			err = fmt.Errorf("acquiring pass lock: %w", lerr)
			r.finishPass(ctx, &res, start, err)
			return res, err
		}
		defer func() {
			if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
				r.log.Warn(ctx, "releasing pass lock failed", logger.Error(rerr))
			}
		}()
	}

	err = r.process(ctx, &res, lease)
	r.finishPass(ctx, &res, start, err)
	return res, err
}

// process delivers every candidate in turn. A non-nil lease is refreshed
// between items; losing it ends the pass.
func (r *Reconciler) process(ctx context.Context, res *PassResult, lease lock.Lease) error {
	subs, err := r.store.ListSubmissions(ctx, repository.Query{
		SyncStatuses:  []model.SyncStatus{model.SyncPending, model.SyncFailed},
		AttemptsBelow: r.maxAttempts,
	})
	if err != nil {
		return fmt.Errorf("listing unsynced submissions: %w", err)
	}
	r.log.Info(ctx, "sync pass started",
		logger.String("type", string(res.Type)), logger.Int("candidates", len(subs)))

	for i := range subs {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
		synced, committed := r.syncOne(ctx, &subs[i])
		switch {
		case !committed:
		case synced:
			res.Synced++
		default:
			res.Failed++
		}
		if i == len(subs)-1 {
			break
		}
		if !r.pause(ctx) {
			res.Interrupted = true
			break
		}
		if lease != nil && !r.refresh(ctx, lease) {
			res.Interrupted = true
			break
		}
	}
	return nil
}

// refresh extends the pass lock; false means it was lost to expiry.
func (r *Reconciler) refresh(ctx context.Context, lease lock.Lease) bool {
	err := lease.Refresh(context.WithoutCancel(ctx))
	if errors.Is(err, lock.ErrNotObtained) {
		r.log.Warn(ctx, "pass lock expired, stopping pass")
		return false
	}
	if err != nil {
		r.log.Warn(ctx, "refreshing pass lock failed", logger.Error(err))
	}
	return true
}

// pause waits between items; false means a stop arrived.
func (r *Reconciler) pause(ctx context.Context) bool {
	if r.itemPause <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(r.itemPause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// finishPass writes the pass log entry and records metrics.
func (r *Reconciler) finishPass(ctx context.Context, res *PassResult, start time.Time, passErr error) {
	res.Duration = time.Since(start)
	entry := model.SyncLogEntry{
		Type:          res.Type,
		Timestamp:     r.now(),
		Synced:        res.Synced,
		Failed:        res.Failed,
		TotalAttempts: res.Synced + res.Failed,
		Duration:      res.Duration,
		Success:       passErr == nil,
	}
	outcome := "ok"
	if passErr != nil {
		entry.ErrorMessage = passErr.Error()
		outcome = "failed"
	}
	wctx := context.WithoutCancel(ctx)
	if err := r.store.AppendSyncLog(wctx, &entry); err != nil {
		r.log.Error(ctx, "writing sync log failed", logger.Error(err))
	}
	metrics.RecordSyncPass(string(res.Type), outcome, float64(res.Duration.Milliseconds()))
	r.refreshBacklog(wctx)

	fields := []logger.Field{
		logger.String("type", string(res.Type)),
		logger.Int("synced", res.Synced),
		logger.Int("failed", res.Failed),
		logger.Duration("duration", res.Duration),
		logger.Bool("interrupted", res.Interrupted),
	}
	if passErr != nil {
		r.log.Error(ctx, "sync pass failed", append(fields, logger.Error(passErr))...)
		return
	}
	r.log.Info(ctx, "sync pass complete", fields...)
}

func (r *Reconciler) refreshBacklog(ctx context.Context) {
	c, err := r.store.CountBySyncStatus(ctx)
	if err != nil {
		return
	}
	metrics.UpdateSyncBacklog(string(model.SyncPending), c.Pending)
	metrics.UpdateSyncBacklog(string(model.SyncFailed), c.Failed)
	metrics.UpdateSyncBacklog(string(model.SyncSynced), c.Synced)
}

// scheduledPass is the background loop body. Stopping the loop does not
// cut the pass short; only Close interrupts it between items.
func (r *Reconciler) scheduledPass(ctx context.Context) error {
	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(r.base, cancel)
	defer stop()
	_, err := r.AutoSyncPending(pctx)
	return err
}

// StartBackground starts the periodic loop. A second call is a logged no-op.
func (r *Reconciler) StartBackground(ctx context.Context) bool {
	ok := r.loop.Start(ctx)
	if ok {
		metrics.UpdateSyncLoopAlive(true)
	}
	return ok
}

// StopBackground stops the loop. A pass in progress runs to completion and
// no further pass starts.
func (r *Reconciler) StopBackground(ctx context.Context) error {
	err := r.loop.Stop(ctx)
	metrics.UpdateSyncLoopAlive(r.loop.Alive())
	if errors.Is(err, worker.ErrNotRunning) {
		return nil
	}
	return err
}

// launch runs a claimed pass in the background.
func (r *Reconciler) launch(typ model.SyncType) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, _ = r.runClaimed(r.base, typ)
	}()
}

// Wait blocks until passes launched in the background have finished.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// Close interrupts any running pass between items, stops the loop and
// waits for launched passes.
func (r *Reconciler) Close(ctx context.Context) error {
	r.cancel()
	err := r.StopBackground(ctx)
	r.wg.Wait()
	return err
}
