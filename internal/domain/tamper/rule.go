// Package tamper scores submissions for signs of fabrication or error.
package tamper

import (
	"context"
	"time"

	"github.com/okian/floodwatch/internal/adapters/repository"
	"github.com/okian/floodwatch/internal/domain/model"
)

// History is the read side of the store the rules consult.
type History interface {
	GetSite(ctx context.Context, id int64) (*model.Site, error)
	ListSubmissions(ctx context.Context, q repository.Query) ([]model.Submission, error)
	CountSubmissions(ctx context.Context, q repository.Query) (int, error)
}

// RuleContext carries what a rule may read besides the submission itself.
type RuleContext struct {
	History History
	// Location is where hour-of-day checks are evaluated.
	Location *time.Location
}

// Finding is a single rule firing before it is persisted.
type Finding struct {
	Type        model.DetectionType
	Severity    model.Severity
	Description string
	Confidence  float64
}

// Record converts f into a detection for submissionID.
func (f Finding) Record(submissionID int64, at time.Time) model.DetectionRecord {
	return model.DetectionRecord{
		SubmissionID:    submissionID,
		Type:            f.Type,
		Severity:        f.Severity,
		Description:     f.Description,
		ConfidenceScore: f.Confidence,
		CreatedAt:       at,
	}
}

// Rule evaluates one independent check. A nil Finding with a nil error means
// the rule did not fire.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, sub *model.Submission, rc RuleContext) (*Finding, error)
}

// DefaultRules returns the built-in rule set in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		LocationMismatch{},
		TimeAnomaly{},
		DuplicateSubmission{},
		PatternAnomaly{},
		QualityAnomaly{},
	}
}
