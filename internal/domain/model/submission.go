// Package model contains domain models passed between layers.
package model

import "time"

// VerificationMethod is how an agent proved presence at a site.
type VerificationMethod string

const (
	VerificationGPS VerificationMethod = "gps"
	VerificationQR  VerificationMethod = "qr"
)

// TamperStatus is the advisory integrity verdict on a submission.
type TamperStatus string

const (
	TamperUnchecked TamperStatus = ""
	TamperClean     TamperStatus = "clean"
	TamperSuspect   TamperStatus = "suspicious"
	TamperConfirmed TamperStatus = "confirmed_tamper"
)

// SuspiciousThreshold is the aggregate score above which a submission is suspicious.
const SuspiciousThreshold = 0.5

// StatusForScore derives the tamper status from an aggregate score.
func StatusForScore(score float64) TamperStatus {
	if score > SuspiciousThreshold {
		return TamperSuspect
	}
	return TamperClean
}

// SyncStatus tracks delivery of a submission to the central store.
//
//	pending --ok--> synced    pending --fail--> failed
//	failed  --ok--> synced    failed  --fail--> failed
//
// synced is terminal for the reconciler.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// Valid reports whether s is a known sync status.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncPending, SyncSynced, SyncFailed:
		return true
	}
	return false
}

// Retryable reports whether the reconciler may attempt delivery from s.
func (s SyncStatus) Retryable() bool {
	return s == SyncPending || s == SyncFailed
}

// Submission is one field-captured water-level reading.
type Submission struct {
	ID                 int64
	UserID             int64
	SiteID             int64
	WaterLevel         float64
	Timestamp          time.Time
	GPSLatitude        float64
	GPSLongitude       float64
	PhotoFilename      string
	LocationVerified   bool
	VerificationMethod VerificationMethod
	QRCodeScanned      *string
	Notes              string
	QualityRating      *int // 1-5, nil when not rated
	CreatedAt          time.Time

	TamperScore     float64
	TamperStatus    TamperStatus
	LastTamperCheck *time.Time

	SyncStatus      SyncStatus
	SyncAttempts    int
	LastSyncAttempt *time.Time
	SyncError       *string
}

// Analyzed reports whether the tamper rules have scored this submission.
func (s *Submission) Analyzed() bool {
	return s.LastTamperCheck != nil
}

// Site is a fixed monitoring location.
type Site struct {
	ID        int64
	Name      string
	Latitude  float64
	Longitude float64
	QRCode    string
	CreatedAt time.Time
}

// Role of a user account.
type Role string

const (
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// User is a field agent or administrator.
type User struct {
	ID        int64
	Username  string
	Role      Role
	CreatedAt time.Time
}
