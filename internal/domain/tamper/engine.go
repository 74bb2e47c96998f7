package tamper

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/floodwatch/internal/adapters/repository"
	"github.com/okian/floodwatch/internal/domain/model"
	"github.com/okian/floodwatch/pkg/logger"
	"github.com/okian/floodwatch/pkg/metrics"
)

// Store is the persistence the engine needs.
type Store interface {
	History
	GetSubmission(ctx context.Context, id int64) (*model.Submission, error)
	SaveTamperResult(ctx context.Context, res repository.TamperResult) error
}

// Engine runs the rule set against submissions and records the outcome.
type Engine struct {
	store    Store
	rules    []Rule
	log      logger.Logger
	location *time.Location
	now      func() time.Time
}

// New creates an engine over store using the default rules.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		rules:    DefaultRules(),
		log:      logger.Nop(),
		location: time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the names of the registered rules in evaluation order.
func (e *Engine) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name()
	}
	return names
}

// AnalyzeByID loads the submission and analyzes it.
func (e *Engine) AnalyzeByID(ctx context.Context, id int64) ([]model.DetectionRecord, error) {
	sub, err := e.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.AnalyzeSubmission(ctx, sub)
}

// AnalyzeSubmission runs every rule against sub, persists the score, status
// and detections as one update, and mirrors the new tamper fields onto sub.
// A failing rule is logged and skipped.
func (e *Engine) AnalyzeSubmission(ctx context.Context, sub *model.Submission) ([]model.DetectionRecord, error) {
	start := time.Now()
	rc := RuleContext{History: e.store, Location: e.location}

	var findings []Finding
	for _, r := range e.rules {
		f, err := e.evaluate(ctx, r, sub, rc)
		if err != nil {
			metrics.RecordRuleFault(r.Name())
			e.log.Error(ctx, "tamper rule failed",
				logger.String("rule", r.Name()),
				logger.Int64("submission_id", sub.ID),
				logger.Error(err))
			continue
		}
		if f != nil {
			findings = append(findings, *f)
		}
	}

	score := aggregate(findings)
	status := model.StatusForScore(score)
	if sub.TamperStatus == model.TamperConfirmed {
		status = model.TamperConfirmed
	}
	checked := e.now()

	records := make([]model.DetectionRecord, len(findings))
	for i, f := range findings {
		records[i] = f.Record(sub.ID, checked)
	}

	err := e.store.SaveTamperResult(ctx, repository.TamperResult{
		SubmissionID: sub.ID,
		Score:        score,
		Status:       status,
		CheckedAt:    checked,
		Detections:   records,
	})
	if err != nil {
		return nil, fmt.Errorf("saving tamper result for submission %d: %w", sub.ID, err)
	}

	sub.TamperScore = score
	sub.TamperStatus = status
	sub.LastTamperCheck = &checked

	for _, r := range records {
		metrics.RecordDetection(string(r.Type), string(r.Severity))
	}
	metrics.RecordSubmissionAnalyzed(float64(time.Since(start).Milliseconds()), score)
	e.log.Debug(ctx, "submission analyzed",
		logger.Int64("submission_id", sub.ID),
		logger.Int("detections", len(records)),
		logger.Float64("score", score),
		logger.String("status", string(status)))
	return records, nil
}

// evaluate runs one rule, turning a panic into ErrRuleFault.
func (e *Engine) evaluate(ctx context.Context, r Rule, sub *model.Submission, rc RuleContext) (f *Finding, err error) {
	defer func() {
		if p := recover(); p != nil {
			f, err = nil, fmt.Errorf("%w: %s: %v", ErrRuleFault, r.Name(), p)
		}
	}()
	f, err = r.Evaluate(ctx, sub, rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRuleFault, r.Name(), err)
	}
	return f, nil
}

// aggregate returns the highest confidence clamped to [0,1], or 0 when nothing fired.
func aggregate(findings []Finding) float64 {
	var score float64
	for _, f := range findings {
		score = math.Max(score, f.Confidence)
	}
	return math.Min(1, math.Max(0, score))
}

// BatchResult summarizes a re-scoring run.
type BatchResult struct {
	TotalAnalyzed        int                         `json:"total_analyzed"`
	SuspiciousFound      int                         `json:"suspicious_found"`
	DetectionsByType     map[model.DetectionType]int `json:"detections_by_type"`
	DetectionsBySeverity map[model.Severity]int      `json:"detections_by_severity"`
	Failed               int                         `json:"failed"`
}

// RunBatchAnalysis re-scores every submission from the trailing days that is
// not confirmed tamper. SuspiciousFound counts submissions with at least one
// detection. Submissions that fail to save are counted in Failed.
func (e *Engine) RunBatchAnalysis(ctx context.Context, days int) (BatchResult, error) {
	if days <= 0 {
		return BatchResult{}, ErrInvalidDays
	}
	subs, err := e.store.ListSubmissions(ctx, repository.Query{
		Since:                 e.now().AddDate(0, 0, -days),
		ExcludeTamperStatuses: []model.TamperStatus{model.TamperConfirmed},
	})
	if err != nil {
		return BatchResult{}, fmt.Errorf("listing batch submissions: %w", err)
	}

	res := BatchResult{
		TotalAnalyzed:        len(subs),
		DetectionsByType:     make(map[model.DetectionType]int),
		DetectionsBySeverity: make(map[model.Severity]int),
	}
	for i := range subs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		dets, err := e.AnalyzeSubmission(ctx, &subs[i])
		if err != nil {
			res.Failed++
			e.log.Error(ctx, "batch analysis failed for submission",
				logger.Int64("submission_id", subs[i].ID), logger.Error(err))
			continue
		}
		if len(dets) > 0 {
			res.SuspiciousFound++
		}
		for _, d := range dets {
			res.DetectionsByType[d.Type]++
			res.DetectionsBySeverity[d.Severity]++
		}
	}

	metrics.RecordBatchRun()
	e.log.Info(ctx, "batch analysis complete",
		logger.Int("days", days),
		logger.Int("analyzed", res.TotalAnalyzed),
		logger.Int("suspicious", res.SuspiciousFound),
		logger.Int("failed", res.Failed))
	return res, nil
}
