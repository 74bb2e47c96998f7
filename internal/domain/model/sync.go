package model

import "time"

// SyncType distinguishes scheduled passes from operator-triggered ones.
type SyncType string

const (
	SyncAuto   SyncType = "auto"
	SyncManual SyncType = "manual"
)

// SyncLogEntry records one execution of the reconciliation loop.
type SyncLogEntry struct {
	ID            int64
	Type          SyncType
	Timestamp     time.Time
	Synced        int
	Failed        int
	TotalAttempts int
	Duration      time.Duration
	Success       bool
	ErrorMessage  string
}

// SyncPayload is the body accepted by the remote delivery endpoint.
type SyncPayload struct {
	SubmissionID       int64              `json:"submission_id"`
	UserID             int64              `json:"user_id"`
	SiteID             int64              `json:"site_id"`
	WaterLevel         float64            `json:"water_level"`
	Timestamp          *string            `json:"timestamp"`
	GPSLatitude        float64            `json:"gps_latitude"`
	GPSLongitude       float64            `json:"gps_longitude"`
	PhotoFilename      string             `json:"photo_filename"`
	LocationVerified   bool               `json:"location_verified"`
	VerificationMethod VerificationMethod `json:"verification_method"`
	QRCodeScanned      *string            `json:"qr_code_scanned"`
	Notes              string             `json:"notes"`
	QualityRating      *int               `json:"quality_rating"`
	TamperScore        *float64           `json:"tamper_score"`
	TamperStatus       *TamperStatus      `json:"tamper_status"`
	CreatedAt          *string            `json:"created_at"`
}

// NewSyncPayload builds the transfer payload for s. Unset timestamps and
// unanalyzed tamper fields are sent as null.
func NewSyncPayload(s *Submission) SyncPayload {
	p := SyncPayload{
		SubmissionID:       s.ID,
		UserID:             s.UserID,
		SiteID:             s.SiteID,
		WaterLevel:         s.WaterLevel,
		Timestamp:          isoTime(s.Timestamp),
		GPSLatitude:        s.GPSLatitude,
		GPSLongitude:       s.GPSLongitude,
		PhotoFilename:      s.PhotoFilename,
		LocationVerified:   s.LocationVerified,
		VerificationMethod: s.VerificationMethod,
		QRCodeScanned:      s.QRCodeScanned,
		Notes:              s.Notes,
		QualityRating:      s.QualityRating,
		CreatedAt:          isoTime(s.CreatedAt),
	}
	if s.Analyzed() {
		score, status := s.TamperScore, s.TamperStatus
		p.TamperScore = &score
		p.TamperStatus = &status
	}
	return p
}

func isoTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	v := t.UTC().Format(time.RFC3339Nano)
	return &v
}
