package tamper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/okian/floodwatch/internal/adapters/repository"
	"github.com/okian/floodwatch/internal/domain/geo"
	"github.com/okian/floodwatch/internal/domain/model"
)

// Rule thresholds.
const (
	criticalDistance = 1000.0
	highDistance     = 500.0
	mediumDistance   = 200.0

	burstWindow    = time.Hour
	burstThreshold = 2

	duplicateWindow = 30 * time.Minute
	duplicateDelta  = 0.1

	patternHistory = 10
	patternSample  = 3
	patternDelta   = 2.0

	minQualityRating = 3
	minNotesLength   = 10
)

// LocationMismatch fires when the reading was taken far from its site.
type LocationMismatch struct{}

func (LocationMismatch) Name() string { return string(model.DetectionLocationMismatch) }

func (r LocationMismatch) Evaluate(ctx context.Context, sub *model.Submission, rc RuleContext) (*Finding, error) {
	site, err := rc.History.GetSite(ctx, sub.SiteID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	d := geo.Distance(sub.GPSLatitude, sub.GPSLongitude, site.Latitude, site.Longitude)
	switch {
	case d > criticalDistance:
		return r.finding(model.SeverityCritical, 0.9,
			fmt.Sprintf("Submission location is %.0fm from designated site", d)), nil
	case d > highDistance:
		return r.finding(model.SeverityHigh, 0.7,
			fmt.Sprintf("Submission location is %.0fm from designated site", d)), nil
	case d > mediumDistance && !sub.LocationVerified:
		return r.finding(model.SeverityMedium, 0.5,
			fmt.Sprintf("Location verification failed for submission %.0fm from site", d)), nil
	}
	return nil, nil
}

func (LocationMismatch) finding(sev model.Severity, conf float64, desc string) *Finding {
	return &Finding{Type: model.DetectionLocationMismatch, Severity: sev, Description: desc, Confidence: conf}
}

// TimeAnomaly fires on bursts of readings from one agent at one site, or on
// readings taken at night.
type TimeAnomaly struct{}

func (TimeAnomaly) Name() string { return string(model.DetectionTimeAnomaly) }

func (TimeAnomaly) Evaluate(ctx context.Context, sub *model.Submission, rc RuleContext) (*Finding, error) {
	prior, err := rc.History.CountSubmissions(ctx, repository.Query{
		UserID:    sub.UserID,
		SiteID:    sub.SiteID,
		ExcludeID: sub.ID,
		After:     sub.Timestamp.Add(-burstWindow),
		Until:     sub.Timestamp,
	})
	if err != nil {
		return nil, err
	}
	if prior > burstThreshold {
		return &Finding{
			Type:        model.DetectionTimeAnomaly,
			Severity:    model.SeverityHigh,
			Description: fmt.Sprintf("Multiple submissions (%d) in quick succession", prior+1),
			Confidence:  0.8,
		}, nil
	}

	loc := rc.Location
	if loc == nil {
		loc = time.UTC
	}
	if hour := sub.Timestamp.In(loc).Hour(); hour >= 22 || hour <= 5 {
		return &Finding{
			Type:        model.DetectionTimeAnomaly,
			Severity:    model.SeverityMedium,
			Description: fmt.Sprintf("Submission made during unusual hours (%02d:00)", hour),
			Confidence:  0.4,
		}, nil
	}
	return nil, nil
}

// DuplicateSubmission fires when the same agent reported a near-identical
// level at the same site shortly before.
type DuplicateSubmission struct{}

func (DuplicateSubmission) Name() string { return string(model.DetectionDuplicate) }

func (DuplicateSubmission) Evaluate(ctx context.Context, sub *model.Submission, rc RuleContext) (*Finding, error) {
	prior, err := rc.History.ListSubmissions(ctx, repository.Query{
		UserID:    sub.UserID,
		SiteID:    sub.SiteID,
		ExcludeID: sub.ID,
		After:     sub.Timestamp.Add(-duplicateWindow),
		Until:     sub.Timestamp,
	})
	if err != nil {
		return nil, err
	}
	for i := range prior {
		if math.Abs(prior[i].WaterLevel-sub.WaterLevel) < duplicateDelta {
			return &Finding{
				Type:        model.DetectionDuplicate,
				Severity:    model.SeverityMedium,
				Description: "Potential duplicate submission detected",
				Confidence:  0.6,
			}, nil
		}
	}
	return nil, nil
}

// PatternAnomaly fires when the level jumps away from the agent's recent average.
type PatternAnomaly struct{}

func (PatternAnomaly) Name() string { return string(model.DetectionPatternAnomaly) }

func (PatternAnomaly) Evaluate(ctx context.Context, sub *model.Submission, rc RuleContext) (*Finding, error) {
	recent, err := rc.History.ListSubmissions(ctx, repository.Query{
		UserID:      sub.UserID,
		NewestFirst: true,
		Limit:       patternHistory,
	})
	if err != nil {
		return nil, err
	}
	if len(recent) < patternSample {
		return nil, nil
	}

	var sum float64
	for _, s := range recent[:patternSample] {
		sum += s.WaterLevel
	}
	diff := math.Abs(sub.WaterLevel - sum/patternSample)
	if diff <= patternDelta {
		return nil, nil
	}
	return &Finding{
		Type:        model.DetectionPatternAnomaly,
		Severity:    model.SeverityHigh,
		Description: fmt.Sprintf("Unusual water level change: %.1fm from recent average", diff),
		Confidence:  0.7,
	}, nil
}

// QualityAnomaly fires when the reading lacks supporting metadata.
type QualityAnomaly struct{}

func (QualityAnomaly) Name() string { return string(model.DetectionQualityAnomaly) }

func (QualityAnomaly) Evaluate(_ context.Context, sub *model.Submission, _ RuleContext) (*Finding, error) {
	var issues []string
	if sub.QualityRating == nil || *sub.QualityRating < minQualityRating {
		issues = append(issues, "Low quality rating")
	}
	if len(strings.TrimSpace(sub.Notes)) < minNotesLength {
		issues = append(issues, "Minimal or missing notes")
	}
	if !sub.LocationVerified {
		issues = append(issues, "Location not verified")
	}
	if len(issues) == 0 {
		return nil, nil
	}
	return &Finding{
		Type:        model.DetectionQualityAnomaly,
		Severity:    model.SeverityMedium,
		Description: "Quality issues: " + strings.Join(issues, ", "),
		Confidence:  0.5,
	}, nil
}
