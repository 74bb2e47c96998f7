package transport

import "errors"

// Sentinel kinds for transport errors.
var (
	ErrDelivery      = errors.New("delivery failed")
	ErrPhotoTransfer = errors.New("photo transfer failed")
	ErrNoEndpoint    = errors.New("sync endpoint not configured")
	ErrNoBucket      = errors.New("storage bucket not configured")
)
