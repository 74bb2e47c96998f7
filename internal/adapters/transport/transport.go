// Package transport delivers submissions and their photos to the central store.
package transport

import (
	"context"
	"time"

	"github.com/okian/floodwatch/internal/domain/model"
)

// Receipt is the remote acknowledgement of a delivered payload.
type Receipt struct {
	ServerID        string    `json:"server_id"`
	ServerTimestamp time.Time `json:"server_timestamp"`
}

// Deliverer pushes one submission payload to the remote endpoint.
type Deliverer interface {
	Deliver(ctx context.Context, p model.SyncPayload) (Receipt, error)
}

// PhotoTransfer moves the photo with the given filename to the remote side.
type PhotoTransfer interface {
	TransferPhoto(ctx context.Context, filename string) error
}

// ConnectionStatus is the result of probing the remote endpoint.
type ConnectionStatus struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

// Pinger is implemented by deliverers that can probe their endpoint.
type Pinger interface {
	Ping(ctx context.Context) ConnectionStatus
}
