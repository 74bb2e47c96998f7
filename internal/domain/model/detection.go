package model

import "time"

// DetectionType names the rule that produced a detection.
type DetectionType string

const (
	DetectionLocationMismatch DetectionType = "location_mismatch"
	DetectionTimeAnomaly      DetectionType = "time_anomaly"
	DetectionDuplicate        DetectionType = "duplicate_submission"
	DetectionPatternAnomaly   DetectionType = "pattern_anomaly"
	DetectionQualityAnomaly   DetectionType = "quality_anomaly"
)

// Severity of a detection, ordered low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordinal of s, or 0 for unknown values.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// DetectionRecord is one rule firing for one submission. Records are append-only.
type DetectionRecord struct {
	ID              int64
	SubmissionID    int64
	Type            DetectionType
	Severity        Severity
	Description     string
	ConfidenceScore float64
	CreatedAt       time.Time
}
