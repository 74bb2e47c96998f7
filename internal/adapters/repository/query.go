package repository

import (
	"slices"

	"github.com/okian/floodwatch/internal/domain/model"
)

// Matches reports whether s satisfies every filter set on q.
func (q Query) Matches(s *model.Submission) bool {
	if q.UserID != 0 && s.UserID != q.UserID {
		return false
	}
	if q.SiteID != 0 && s.SiteID != q.SiteID {
		return false
	}
	if q.ExcludeID != 0 && s.ID == q.ExcludeID {
		return false
	}
	if len(q.SyncStatuses) > 0 && !slices.Contains(q.SyncStatuses, s.SyncStatus) {
		return false
	}
	if len(q.ExcludeTamperStatuses) > 0 && slices.Contains(q.ExcludeTamperStatuses, s.TamperStatus) {
		return false
	}
	if !q.After.IsZero() && !s.Timestamp.After(q.After) {
		return false
	}
	if !q.Since.IsZero() && s.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && s.Timestamp.After(q.Until) {
		return false
	}
	if q.AttemptsBelow > 0 && s.SyncAttempts >= q.AttemptsBelow {
		return false
	}
	return true
}

func (q Query) validate() error {
	if q.Limit < 0 {
		return ErrInvalidLimit
	}
	for _, st := range q.SyncStatuses {
		if !st.Valid() {
			return ErrInvalidStatus
		}
	}
	return nil
}

// Retryable selects every submission the reconciler should attempt.
func Retryable() Query {
	return Query{SyncStatuses: []model.SyncStatus{model.SyncPending, model.SyncFailed}}
}
