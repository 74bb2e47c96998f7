// Package types contains the JSON views shared by the HTTP API and the CLI.
package types

import (
	"time"

	"github.com/okian/floodwatch/internal/domain/model"
)

// Detection is the wire shape of a detection record.
type Detection struct {
	ID              int64   `json:"id"`
	SubmissionID    int64   `json:"submission_id"`
	Type            string  `json:"detection_type"`
	Severity        string  `json:"severity"`
	Description     string  `json:"description"`
	ConfidenceScore float64 `json:"confidence_score"`
	CreatedAt       string  `json:"created_at"`
}

// Analysis is the outcome of scoring one submission.
type Analysis struct {
	SubmissionID int64       `json:"submission_id"`
	TamperScore  float64     `json:"tamper_score"`
	TamperStatus string      `json:"tamper_status"`
	Detections   []Detection `json:"detections"`
}

// SyncLog is the wire shape of a pass log entry.
type SyncLog struct {
	ID              int64   `json:"id"`
	SyncType        string  `json:"sync_type"`
	Timestamp       string  `json:"timestamp"`
	SubmissionsSync int     `json:"submissions_synced"`
	SubmissionsFail int     `json:"submissions_failed"`
	TotalAttempts   int     `json:"total_attempts"`
	DurationSeconds float64 `json:"duration_seconds"`
	Success         bool    `json:"success"`
	ErrorMessage    string  `json:"error_message,omitempty"`
}

func FromDetection(d model.DetectionRecord) Detection {
	return Detection{
		ID:              d.ID,
		SubmissionID:    d.SubmissionID,
		Type:            string(d.Type),
		Severity:        string(d.Severity),
		Description:     d.Description,
		ConfidenceScore: d.ConfidenceScore,
		CreatedAt:       stamp(d.CreatedAt),
	}
}

func FromDetections(ds []model.DetectionRecord) []Detection {
	out := make([]Detection, len(ds))
	for i, d := range ds {
		out[i] = FromDetection(d)
	}
	return out
}

// NewAnalysis builds the view for sub after analysis produced dets.
func NewAnalysis(sub *model.Submission, dets []model.DetectionRecord) Analysis {
	return Analysis{
		SubmissionID: sub.ID,
		TamperScore:  sub.TamperScore,
		TamperStatus: string(sub.TamperStatus),
		Detections:   FromDetections(dets),
	}
}

func FromSyncLog(e model.SyncLogEntry) SyncLog {
	return SyncLog{
		ID:              e.ID,
		SyncType:        string(e.Type),
		Timestamp:       stamp(e.Timestamp),
		SubmissionsSync: e.Synced,
		SubmissionsFail: e.Failed,
		TotalAttempts:   e.TotalAttempts,
		DurationSeconds: e.Duration.Seconds(),
		Success:         e.Success,
		ErrorMessage:    e.ErrorMessage,
	}
}

func FromSyncLogs(es []model.SyncLogEntry) []SyncLog {
	out := make([]SyncLog, len(es))
	for i, e := range es {
		out[i] = FromSyncLog(e)
	}
	return out
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
