package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/floodwatch/internal/domain/model"
	"github.com/okian/floodwatch/pkg/metrics"
)

// MemoryStore is an in-memory Store. Values are copied on the way in and out
// so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	opts     options
	closed   bool
	sites    map[int64]model.Site
	users    map[int64]model.User
	subs     map[int64]model.Submission
	dets     []model.DetectionRecord
	logs     []model.SyncLogEntry
	nextSite int64
	nextUser int64
	nextSub  int64
	nextDet  int64
	nextLog  int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		opts:  o,
		sites: make(map[int64]model.Site),
		users: make(map[int64]model.User),
		subs:  make(map[int64]model.Submission),
	}
}

func observe(op string, start time.Time, err *error) {
	failed := *err != nil && !errors.Is(*err, ErrNotFound)
	metrics.RecordRepositoryQuery(op, float64(time.Since(start).Milliseconds()), failed)
}

func (s *MemoryStore) GetSubmission(_ context.Context, id int64) (_ *model.Submission, err error) {
	defer observe("get_submission", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, fmt.Errorf("submission %d: %w", id, ErrNotFound)
	}
	return cloneSubmission(&sub), nil
}

func (s *MemoryStore) GetSite(_ context.Context, id int64) (*model.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[id]
	if !ok {
		return nil, fmt.Errorf("site %d: %w", id, ErrNotFound)
	}
	return &site, nil
}

func (s *MemoryStore) ListSites(_ context.Context) ([]model.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Site, 0, len(s.sites))
	for _, site := range s.sites {
		out = append(out, site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateSite(_ context.Context, site *model.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.nextSite++
	site.ID = s.nextSite
	if site.CreatedAt.IsZero() {
		site.CreatedAt = s.opts.now()
	}
	s.sites[site.ID] = *site
	return nil
}

func (s *MemoryStore) CreateUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.nextUser++
	user.ID = s.nextUser
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.opts.now()
	}
	if user.Role == "" {
		user.Role = model.RoleAgent
	}
	s.users[user.ID] = *user
	return nil
}

func (s *MemoryStore) CreateSubmission(_ context.Context, sub *model.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.nextSub++
	sub.ID = s.nextSub
	if sub.SyncStatus == "" {
		sub.SyncStatus = model.SyncPending
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.opts.now()
	}
	s.subs[sub.ID] = *cloneSubmission(sub)
	return nil
}

func (s *MemoryStore) ListSubmissions(_ context.Context, q Query) (_ []model.Submission, err error) {
	defer observe("list_submissions", time.Now(), &err)
	if err := q.validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.Submission, 0)
	for _, sub := range s.subs {
		if q.Matches(&sub) {
			out = append(out, *cloneSubmission(&sub))
		}
	}
	s.mu.RUnlock()

	if q.NewestFirst {
		sort.Slice(out, func(i, j int) bool {
			if !out[i].Timestamp.Equal(out[j].Timestamp) {
				return out[i].Timestamp.After(out[j].Timestamp)
			}
			return out[i].ID > out[j].ID
		})
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) CountSubmissions(_ context.Context, q Query) (int, error) {
	if err := q.validate(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sub := range s.subs {
		if q.Matches(&sub) {
			n++
		}
	}
	if q.Limit > 0 && n > q.Limit {
		n = q.Limit
	}
	return n, nil
}

func (s *MemoryStore) CountBySyncStatus(_ context.Context) (SyncCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c SyncCounts
	for _, sub := range s.subs {
		switch sub.SyncStatus {
		case model.SyncPending:
			c.Pending++
		case model.SyncSynced:
			c.Synced++
		case model.SyncFailed:
			c.Failed++
		}
	}
	return c, nil
}

func (s *MemoryStore) SaveTamperResult(_ context.Context, res TamperResult) (err error) {
	defer observe("save_tamper_result", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	sub, ok := s.subs[res.SubmissionID]
	if !ok {
		return fmt.Errorf("submission %d: %w", res.SubmissionID, ErrNotFound)
	}
	checked := res.CheckedAt
	sub.TamperScore = res.Score
	sub.TamperStatus = res.Status
	sub.LastTamperCheck = &checked
	s.subs[sub.ID] = sub

	for _, d := range res.Detections {
		s.nextDet++
		d.ID = s.nextDet
		d.SubmissionID = sub.ID
		if d.CreatedAt.IsZero() {
			d.CreatedAt = checked
		}
		s.dets = append(s.dets, d)
	}
	return nil
}

func (s *MemoryStore) ListDetections(_ context.Context, submissionID int64) ([]model.DetectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.DetectionRecord, 0)
	for _, d := range s.dets {
		if d.SubmissionID == submissionID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryStore) RecordSyncAttempt(_ context.Context, att SyncAttempt) (err error) {
	defer observe("record_sync_attempt", time.Now(), &err)
	if !att.Status.Valid() {
		return ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	sub, ok := s.subs[att.SubmissionID]
	if !ok {
		return fmt.Errorf("submission %d: %w", att.SubmissionID, ErrNotFound)
	}
	if !sub.SyncStatus.Retryable() {
		return fmt.Errorf("submission %d: %w", att.SubmissionID, ErrAlreadySynced)
	}
	at := att.At
	sub.SyncStatus = att.Status
	sub.SyncAttempts++
	sub.LastSyncAttempt = &at
	sub.SyncError = cloneString(att.Error)
	s.subs[sub.ID] = sub
	return nil
}

func (s *MemoryStore) MarkAllSynced(_ context.Context, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	n := 0
	for id, sub := range s.subs {
		if !sub.SyncStatus.Retryable() {
			continue
		}
		ts := at
		sub.SyncStatus = model.SyncSynced
		sub.SyncAttempts = 1
		sub.SyncError = nil
		sub.LastSyncAttempt = &ts
		s.subs[id] = sub
		n++
	}
	return n, nil
}

func (s *MemoryStore) AppendSyncLog(_ context.Context, entry *model.SyncLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.nextLog++
	entry.ID = s.nextLog
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.opts.now()
	}
	s.logs = append(s.logs, *entry)
	return nil
}

func (s *MemoryStore) ListSyncLogs(_ context.Context, limit int) ([]model.SyncLogEntry, error) {
	if limit < 0 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.SyncLogEntry, 0, len(s.logs))
	for i := len(s.logs) - 1; i >= 0; i-- {
		out = append(out, s.logs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Close marks the store closed; subsequent writes fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func cloneSubmission(s *model.Submission) *model.Submission {
	c := *s
	c.QRCodeScanned = cloneString(s.QRCodeScanned)
	c.SyncError = cloneString(s.SyncError)
	if s.QualityRating != nil {
		v := *s.QualityRating
		c.QualityRating = &v
	}
	if s.LastTamperCheck != nil {
		v := *s.LastTamperCheck
		c.LastTamperCheck = &v
	}
	if s.LastSyncAttempt != nil {
		v := *s.LastSyncAttempt
		c.LastSyncAttempt = &v
	}
	return &c
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
