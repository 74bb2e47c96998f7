package tamper

import "errors"

// Sentinel kinds for tamper analysis errors.
var (
	ErrRuleFault   = errors.New("tamper rule fault")
	ErrInvalidDays = errors.New("batch window must be positive")
)
