// Package repository defines the submission store interface and its implementations.
package repository

import (
	"context"
	"time"

	"github.com/okian/floodwatch/internal/domain/model"
)

// Query filters submission listings. Zero-valued fields do not filter.
type Query struct {
	UserID    int64
	SiteID    int64
	ExcludeID int64

	SyncStatuses          []model.SyncStatus
	ExcludeTamperStatuses []model.TamperStatus

	// After is an exclusive lower bound on Timestamp.
	After time.Time
	// Since is an inclusive lower bound on Timestamp.
	Since time.Time
	// Until is an inclusive upper bound on Timestamp.
	Until time.Time

	// AttemptsBelow keeps submissions with fewer sync attempts than the value.
	AttemptsBelow int

	// NewestFirst orders by Timestamp descending; the default is ascending by id.
	NewestFirst bool
	Limit       int
}

// TamperResult is the outcome of one analysis run, persisted as a unit.
type TamperResult struct {
	SubmissionID int64
	Score        float64
	Status       model.TamperStatus
	CheckedAt    time.Time
	Detections   []model.DetectionRecord
}

// SyncAttempt is the outcome of one delivery attempt for one submission.
type SyncAttempt struct {
	SubmissionID int64
	Status       model.SyncStatus
	Error        *string
	At           time.Time
}

// SyncCounts holds the number of submissions per sync status.
type SyncCounts struct {
	Pending int
	Synced  int
	Failed  int
}

// Total returns the number of submissions across all statuses.
func (c SyncCounts) Total() int { return c.Pending + c.Synced + c.Failed }

// Store provides read/write access to submissions and their audit records.
type Store interface {
	// GetSubmission returns ErrNotFound if the id is unknown.
	GetSubmission(ctx context.Context, id int64) (*model.Submission, error)
	// GetSite returns ErrNotFound if the id is unknown.
	GetSite(ctx context.Context, id int64) (*model.Site, error)
	ListSites(ctx context.Context) ([]model.Site, error)

	CreateSite(ctx context.Context, site *model.Site) error
	CreateUser(ctx context.Context, user *model.User) error
	// CreateSubmission assigns the id and defaults sync_status to pending.
	CreateSubmission(ctx context.Context, sub *model.Submission) error

	ListSubmissions(ctx context.Context, q Query) ([]model.Submission, error)
	CountSubmissions(ctx context.Context, q Query) (int, error)
	CountBySyncStatus(ctx context.Context) (SyncCounts, error)

	// SaveTamperResult writes the tamper fields and appends the detections atomically.
	SaveTamperResult(ctx context.Context, res TamperResult) error
	ListDetections(ctx context.Context, submissionID int64) ([]model.DetectionRecord, error)

	// RecordSyncAttempt sets the sync fields and increments the attempt counter.
	// It only applies to a pending or failed submission; one already synced
	// is left untouched and ErrAlreadySynced is returned.
	RecordSyncAttempt(ctx context.Context, att SyncAttempt) error
	// MarkAllSynced forces every pending or failed submission to synced with one attempt.
	MarkAllSynced(ctx context.Context, at time.Time) (int, error)

	AppendSyncLog(ctx context.Context, entry *model.SyncLogEntry) error
	// ListSyncLogs returns the newest entries first.
	ListSyncLogs(ctx context.Context, limit int) ([]model.SyncLogEntry, error)

	Close() error
}
