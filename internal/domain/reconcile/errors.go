package reconcile

import "errors"

// Sentinel kinds for reconciliation errors.
var (
	ErrPassInProgress = errors.New("sync pass already in progress")
	ErrPassPanicked   = errors.New("sync pass panicked")
)
