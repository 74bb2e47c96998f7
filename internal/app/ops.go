package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/floodwatch/internal/adapters/transport"
	"github.com/okian/floodwatch/internal/domain/model"
	"github.com/okian/floodwatch/internal/domain/reconcile"
	"github.com/okian/floodwatch/internal/domain/tamper"
	"github.com/okian/floodwatch/internal/domain/types"
)

// components returns the engine and reconciler, or ErrNotStarted.
func (s *Service) components() (*tamper.Engine, *reconcile.Reconciler, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.engine, s.recon, nil
}

// Analyze scores one stored submission.
func (s *Service) Analyze(ctx context.Context, id int64) (types.Analysis, error) {
	eng, _, err := s.components()
	if err != nil {
		return types.Analysis{}, err
	}
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return types.Analysis{}, err
	}
	dets, err := eng.AnalyzeSubmission(ctx, sub)
	if err != nil {
		return types.Analysis{}, err
	}
	return types.NewAnalysis(sub, dets), nil
}

// Detections lists every detection recorded for a submission.
func (s *Service) Detections(ctx context.Context, id int64) ([]types.Detection, error) {
	if _, _, err := s.components(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetSubmission(ctx, id); err != nil {
		return nil, err
	}
	dets, err := s.store.ListDetections(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing detections: %w", err)
	}
	return types.FromDetections(dets), nil
}

// RunBatch re-scores the trailing days; days <= 0 uses batch_days.
func (s *Service) RunBatch(ctx context.Context, days int) (tamper.BatchResult, error) {
	eng, _, err := s.components()
	if err != nil {
		return tamper.BatchResult{}, err
	}
	if days <= 0 {
		days = s.cfg.BatchDays
	}
	return eng.RunBatchAnalysis(ctx, days)
}

// AgentBehavior summarizes an agent; window <= 0 uses agent_window_hours.
func (s *Service) AgentBehavior(ctx context.Context, userID int64, window time.Duration) (tamper.AgentReport, error) {
	eng, _, err := s.components()
	if err != nil {
		return tamper.AgentReport{}, err
	}
	if window <= 0 {
		window = s.cfg.AgentWindow()
	}
	return eng.MonitorAgentBehavior(ctx, userID, window)
}

func (s *Service) SyncStatus(ctx context.Context) (reconcile.Status, error) {
	_, r, err := s.components()
	if err != nil {
		return reconcile.Status{}, err
	}
	return r.Status(ctx)
}

func (s *Service) ManualSync(ctx context.Context) (reconcile.TriggerResult, error) {
	_, r, err := s.components()
	if err != nil {
		return reconcile.TriggerResult{}, err
	}
	return r.ManualSync(ctx)
}

// TriggerSync starts an immediate scheduled-type pass in the background.
func (s *Service) TriggerSync(ctx context.Context) (reconcile.TriggerResult, error) {
	_, r, err := s.components()
	if err != nil {
		return reconcile.TriggerResult{}, err
	}
	res := reconcile.TriggerResult{Started: r.TriggerImmediateSync(ctx)}
	res.Message = "Sync triggered."
	if !res.Started {
		res.Message = "Sync is already in progress. Please wait for completion."
	}
	res.Status, err = r.Status(ctx)
	return res, err
}

// RunSync runs one pass and blocks until it completes.
func (s *Service) RunSync(ctx context.Context) (reconcile.PassResult, error) {
	_, r, err := s.components()
	if err != nil {
		return reconcile.PassResult{}, err
	}
	return r.RunPass(ctx, model.SyncManual)
}

func (s *Service) QuickSync(ctx context.Context) (reconcile.TriggerResult, error) {
	_, r, err := s.components()
	if err != nil {
		return reconcile.TriggerResult{}, err
	}
	return r.QuickSync(ctx)
}

func (s *Service) MarkAllSynced(ctx context.Context) (int, error) {
	_, r, err := s.components()
	if err != nil {
		return 0, err
	}
	return r.MarkAllSynced(ctx)
}

func (s *Service) SyncLogs(ctx context.Context, limit int) ([]types.SyncLog, error) {
	_, r, err := s.components()
	if err != nil {
		return nil, err
	}
	logs, err := r.RecentLogs(ctx, limit)
	if err != nil {
		return nil, err
	}
	return types.FromSyncLogs(logs), nil
}

func (s *Service) TestConnection(ctx context.Context) (transport.ConnectionStatus, error) {
	_, r, err := s.components()
	if err != nil {
		return transport.ConnectionStatus{}, err
	}
	return r.TestConnection(ctx), nil
}
