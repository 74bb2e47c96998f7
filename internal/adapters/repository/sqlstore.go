package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/floodwatch/internal/domain/model"
	"github.com/okian/floodwatch/pkg/logger"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory SQLite database.
const MemoryPath = ":memory:"

// SQLStore is a Store backed by database/sql with the SQLite dialect.
type SQLStore struct {
	db   *sql.DB
	opts options
}

var _ Store = (*SQLStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var dsn string
	if path == MemoryPath {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(%s)&_pragma=foreign_keys(1)",
			path, o.journal)
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == MemoryPath {
		// every connection would otherwise see its own empty database
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := NewSQLStore(sqlDB, opts...)
	if err := s.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	o.log.Info(ctx, "sqlite store ready", logger.String("path", path))
	return s, nil
}

// NewSQLStore wraps an open database. The schema is not applied.
func NewSQLStore(db *sql.DB, opts ...Option) *SQLStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &SQLStore{db: db, opts: o}
}

func (s *SQLStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const submissionColumns = `id, user_id, site_id, water_level, timestamp, gps_latitude, gps_longitude,
	photo_filename, location_verified, verification_method, qr_code_scanned, notes, quality_rating,
	created_at, tamper_score, tamper_status, last_tamper_check, sync_status, sync_attempts,
	last_sync_attempt, sync_error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(r rowScanner) (*model.Submission, error) {
	var (
		sub                          model.Submission
		ts, created                  int64
		verified                     bool
		qr, syncErr                  sql.NullString
		rating                       sql.NullInt64
		tamperCheck, lastSyncAttempt sql.NullInt64
	)
	err := r.Scan(&sub.ID, &sub.UserID, &sub.SiteID, &sub.WaterLevel, &ts, &sub.GPSLatitude, &sub.GPSLongitude,
		&sub.PhotoFilename, &verified, &sub.VerificationMethod, &qr, &sub.Notes, &rating,
		&created, &sub.TamperScore, &sub.TamperStatus, &tamperCheck, &sub.SyncStatus, &sub.SyncAttempts,
		&lastSyncAttempt, &syncErr)
	if err != nil {
		return nil, err
	}
	sub.Timestamp = fromNanos(ts)
	sub.CreatedAt = fromNanos(created)
	sub.LocationVerified = verified
	sub.QRCodeScanned = nullString(qr)
	sub.SyncError = nullString(syncErr)
	if rating.Valid {
		v := int(rating.Int64)
		sub.QualityRating = &v
	}
	sub.LastTamperCheck = nullTime(tamperCheck)
	sub.LastSyncAttempt = nullTime(lastSyncAttempt)
	return &sub, nil
}

func (s *SQLStore) GetSubmission(ctx context.Context, id int64) (_ *model.Submission, err error) {
	defer observe("get_submission", time.Now(), &err)
	row := s.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("submission %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading submission %d: %w", id, err)
	}
	return sub, nil
}

func (s *SQLStore) GetSite(ctx context.Context, id int64) (*model.Site, error) {
	var (
		site    model.Site
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, latitude, longitude, qr_code, created_at FROM sites WHERE id = ?`, id).
		Scan(&site.ID, &site.Name, &site.Latitude, &site.Longitude, &site.QRCode, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("site %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading site %d: %w", id, err)
	}
	site.CreatedAt = fromNanos(created)
	return &site, nil
}

func (s *SQLStore) ListSites(ctx context.Context) ([]model.Site, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, latitude, longitude, qr_code, created_at FROM sites ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}
	defer rows.Close()

	var out []model.Site
	for rows.Next() {
		var (
			site    model.Site
			created int64
		)
		if err := rows.Scan(&site.ID, &site.Name, &site.Latitude, &site.Longitude, &site.QRCode, &created); err != nil {
			return nil, err
		}
		site.CreatedAt = fromNanos(created)
		out = append(out, site)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateSite(ctx context.Context, site *model.Site) error {
	if site.CreatedAt.IsZero() {
		site.CreatedAt = s.opts.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sites (name, latitude, longitude, qr_code, created_at) VALUES (?, ?, ?, ?, ?)`,
		site.Name, site.Latitude, site.Longitude, site.QRCode, site.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("inserting site: %w", err)
	}
	site.ID, err = res.LastInsertId()
	return err
}

func (s *SQLStore) CreateUser(ctx context.Context, user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.opts.now()
	}
	if user.Role == "" {
		user.Role = model.RoleAgent
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, role, created_at) VALUES (?, ?, ?)`,
		user.Username, user.Role, user.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	user.ID, err = res.LastInsertId()
	return err
}

func (s *SQLStore) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	if sub.SyncStatus == "" {
		sub.SyncStatus = model.SyncPending
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.opts.now()
	}
	if sub.VerificationMethod == "" {
		sub.VerificationMethod = model.VerificationGPS
	}
	var rating any
	if sub.QualityRating != nil {
		rating = *sub.QualityRating
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (user_id, site_id, water_level, timestamp, gps_latitude, gps_longitude,
			photo_filename, location_verified, verification_method, qr_code_scanned, notes, quality_rating,
			created_at, tamper_score, tamper_status, last_tamper_check, sync_status, sync_attempts,
			last_sync_attempt, sync_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.UserID, sub.SiteID, sub.WaterLevel, sub.Timestamp.UnixNano(), sub.GPSLatitude, sub.GPSLongitude,
		sub.PhotoFilename, sub.LocationVerified, sub.VerificationMethod, sub.QRCodeScanned, sub.Notes, rating,
		sub.CreatedAt.UnixNano(), sub.TamperScore, sub.TamperStatus, timeArg(sub.LastTamperCheck), sub.SyncStatus,
		sub.SyncAttempts, timeArg(sub.LastSyncAttempt), sub.SyncError)
	if err != nil {
		return fmt.Errorf("inserting submission: %w", err)
	}
	sub.ID, err = res.LastInsertId()
	return err
}

// where renders q as a WHERE clause with positional arguments.
func where(q Query) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if q.UserID != 0 {
		conds = append(conds, "user_id = ?")
		args = append(args, q.UserID)
	}
	if q.SiteID != 0 {
		conds = append(conds, "site_id = ?")
		args = append(args, q.SiteID)
	}
	if q.ExcludeID != 0 {
		conds = append(conds, "id != ?")
		args = append(args, q.ExcludeID)
	}
	if len(q.SyncStatuses) > 0 {
		conds = append(conds, "sync_status IN ("+placeholders(len(q.SyncStatuses))+")")
		for _, st := range q.SyncStatuses {
			args = append(args, string(st))
		}
	}
	if len(q.ExcludeTamperStatuses) > 0 {
		conds = append(conds, "tamper_status NOT IN ("+placeholders(len(q.ExcludeTamperStatuses))+")")
		for _, st := range q.ExcludeTamperStatuses {
			args = append(args, string(st))
		}
	}
	if !q.After.IsZero() {
		conds = append(conds, "timestamp > ?")
		args = append(args, q.After.UnixNano())
	}
	if !q.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if !q.Until.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, q.Until.UnixNano())
	}
	if q.AttemptsBelow > 0 {
		conds = append(conds, "sync_attempts < ?")
		args = append(args, q.AttemptsBelow)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (s *SQLStore) ListSubmissions(ctx context.Context, q Query) (_ []model.Submission, err error) {
	defer observe("list_submissions", time.Now(), &err)
	if err := q.validate(); err != nil {
		return nil, err
	}
	clause, args := where(q)
	query := `SELECT ` + submissionColumns + ` FROM submissions` + clause
	if q.NewestFirst {
		query += ` ORDER BY timestamp DESC, id DESC`
	} else {
		query += ` ORDER BY id`
	}
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	defer rows.Close()

	out := make([]model.Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning submission: %w", err)
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountSubmissions(ctx context.Context, q Query) (int, error) {
	if err := q.validate(); err != nil {
		return 0, err
	}
	clause, args := where(q)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions`+clause, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting submissions: %w", err)
	}
	if q.Limit > 0 && n > q.Limit {
		n = q.Limit
	}
	return n, nil
}

func (s *SQLStore) CountBySyncStatus(ctx context.Context) (SyncCounts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sync_status, COUNT(*) FROM submissions GROUP BY sync_status`)
	if err != nil {
		return SyncCounts{}, fmt.Errorf("counting by sync status: %w", err)
	}
	defer rows.Close()

	var c SyncCounts
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return SyncCounts{}, err
		}
		switch model.SyncStatus(status) {
		case model.SyncPending:
			c.Pending = n
		case model.SyncSynced:
			c.Synced = n
		case model.SyncFailed:
			c.Failed = n
		}
	}
	return c, rows.Err()
}

func (s *SQLStore) SaveTamperResult(ctx context.Context, res TamperResult) (err error) {
	defer observe("save_tamper_result", time.Now(), &err)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tamper update: %w", err)
	}
	defer tx.Rollback()

	upd, err := tx.ExecContext(ctx,
		`UPDATE submissions SET tamper_score = ?, tamper_status = ?, last_tamper_check = ? WHERE id = ?`,
		res.Score, string(res.Status), res.CheckedAt.UnixNano(), res.SubmissionID)
	if err != nil {
		return fmt.Errorf("updating tamper fields: %w", err)
	}
	if n, _ := upd.RowsAffected(); n == 0 {
		return fmt.Errorf("submission %d: %w", res.SubmissionID, ErrNotFound)
	}

	for _, d := range res.Detections {
		created := d.CreatedAt
		if created.IsZero() {
			created = res.CheckedAt
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tamper_detections (submission_id, detection_type, severity, description, confidence_score, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			res.SubmissionID, string(d.Type), string(d.Severity), d.Description, d.ConfidenceScore, created.UnixNano())
		if err != nil {
			return fmt.Errorf("inserting detection: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) ListDetections(ctx context.Context, submissionID int64) ([]model.DetectionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, submission_id, detection_type, severity, description, confidence_score, created_at
		FROM tamper_detections WHERE submission_id = ? ORDER BY id`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("listing detections: %w", err)
	}
	defer rows.Close()

	out := make([]model.DetectionRecord, 0)
	for rows.Next() {
		var (
			d       model.DetectionRecord
			created int64
		)
		if err := rows.Scan(&d.ID, &d.SubmissionID, &d.Type, &d.Severity, &d.Description, &d.ConfidenceScore, &created); err != nil {
			return nil, err
		}
		d.CreatedAt = fromNanos(created)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLStore) RecordSyncAttempt(ctx context.Context, att SyncAttempt) (err error) {
	defer observe("record_sync_attempt", time.Now(), &err)
	if !att.Status.Valid() {
		return ErrInvalidStatus
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET sync_status = ?, sync_attempts = sync_attempts + 1, last_sync_attempt = ?, sync_error = ?
		WHERE id = ? AND sync_status IN ('pending', 'failed')`,
		string(att.Status), att.At.UnixNano(), att.Error, att.SubmissionID)
	if err != nil {
		return fmt.Errorf("recording sync attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM submissions WHERE id = ?`, att.SubmissionID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("submission %d: %w", att.SubmissionID, ErrNotFound)
	case err != nil:
		return fmt.Errorf("recording sync attempt: %w", err)
	}
	return fmt.Errorf("submission %d: %w", att.SubmissionID, ErrAlreadySynced)
}

func (s *SQLStore) MarkAllSynced(ctx context.Context, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET sync_status = 'synced', sync_attempts = 1, sync_error = NULL, last_sync_attempt = ?
		WHERE sync_status IN ('pending', 'failed')`, at.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("marking submissions synced: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLStore) AppendSyncLog(ctx context.Context, entry *model.SyncLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.opts.now()
	}
	var errMsg any
	if entry.ErrorMessage != "" {
		errMsg = entry.ErrorMessage
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_logs (sync_type, timestamp, synced, failed, total_attempts, duration_ms, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(entry.Type), entry.Timestamp.UnixNano(), entry.Synced, entry.Failed, entry.TotalAttempts,
		entry.Duration.Milliseconds(), entry.Success, errMsg)
	if err != nil {
		return fmt.Errorf("inserting sync log: %w", err)
	}
	entry.ID, err = res.LastInsertId()
	return err
}

func (s *SQLStore) ListSyncLogs(ctx context.Context, limit int) ([]model.SyncLogEntry, error) {
	if limit < 0 {
		return nil, ErrInvalidLimit
	}
	query := `SELECT id, sync_type, timestamp, synced, failed, total_attempts, duration_ms, success, error_message
		FROM sync_logs ORDER BY timestamp DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sync logs: %w", err)
	}
	defer rows.Close()

	out := make([]model.SyncLogEntry, 0)
	for rows.Next() {
		var (
			e          model.SyncLogEntry
			ts, durMs  int64
			errMessage sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Type, &ts, &e.Synced, &e.Failed, &e.TotalAttempts, &durMs, &e.Success, &errMessage); err != nil {
			return nil, err
		}
		e.Timestamp = fromNanos(ts)
		e.Duration = time.Duration(durMs) * time.Millisecond
		e.ErrorMessage = errMessage.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullString(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}
