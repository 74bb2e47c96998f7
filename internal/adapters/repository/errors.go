package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidLimit  = errors.New("invalid listing limit")
	ErrInvalidStatus = errors.New("invalid sync status")
	ErrUnknownDriver = errors.New("unknown database driver")
	ErrClosed        = errors.New("store closed")
	ErrAlreadySynced = errors.New("submission already synced")
)
