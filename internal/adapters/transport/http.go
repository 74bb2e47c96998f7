package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/okian/floodwatch/internal/domain/model"
	"github.com/okian/floodwatch/pkg/logger"
)

const (
	submissionsPath = "/api/submissions"
	photosPath      = "/api/photos"
)

// deliveryResponse is the body returned by the sync endpoint.
type deliveryResponse struct {
	Success         bool   `json:"success"`
	ServerID        string `json:"server_id"`
	ServerTimestamp string `json:"server_timestamp"`
	Error           string `json:"error"`
}

// HTTPClient talks to the remote sync endpoint over HTTP. It implements
// Deliverer, PhotoTransfer and Pinger.
type HTTPClient struct {
	client *resty.Client
	opts   options
}

var (
	_ Deliverer     = (*HTTPClient)(nil)
	_ PhotoTransfer = (*HTTPClient)(nil)
	_ Pinger        = (*HTTPClient)(nil)
)

// NewHTTPClient creates a client for the endpoint at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, ErrNoEndpoint
	}
	o := apply(opts)
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(o.timeout).
		SetRetryCount(o.retries).
		SetRetryWaitTime(o.retryWait).
		SetRetryMaxWaitTime(5 * o.retryWait).
		SetHeader("Accept", "application/json")
	return &HTTPClient{client: client, opts: o}, nil
}

// Deliver posts the payload and returns the server receipt.
func (c *HTTPClient) Deliver(ctx context.Context, p model.SyncPayload) (Receipt, error) {
	var body deliveryResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Request-ID", uuid.NewString()).
		SetBody(p).
		SetResult(&body).
		SetError(&body).
		Post(submissionsPath)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	if resp.IsError() || !body.Success {
		msg := body.Error
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", resp.StatusCode())
		}
		return Receipt{}, fmt.Errorf("%w: %s", ErrDelivery, msg)
	}

	rec := Receipt{ServerID: body.ServerID}
	if ts, err := time.Parse(time.RFC3339Nano, body.ServerTimestamp); err == nil {
		rec.ServerTimestamp = ts
	}
	c.opts.log.Debug(ctx, "payload delivered",
		logger.Int64("submission_id", p.SubmissionID),
		logger.String("server_id", rec.ServerID))
	return rec, nil
}

// TransferPhoto uploads the local photo as multipart form data. A missing
// local file is logged and treated as success.
func (c *HTTPClient) TransferPhoto(ctx context.Context, filename string) error {
	if filename == "" {
		return nil
	}
	path := filepath.Join(c.opts.uploadDir, filepath.Base(filename))
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		c.opts.log.Warn(ctx, "photo file not found, continuing", logger.String("path", path))
		return nil
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetFile("photo", path).
		SetFormData(map[string]string{"filename": filename}).
		Post(photosPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPhotoTransfer, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: unexpected status %d", ErrPhotoTransfer, resp.StatusCode())
	}
	return nil
}

// Ping issues a GET against the health path.
func (c *HTTPClient) Ping(ctx context.Context) ConnectionStatus {
	resp, err := c.client.R().SetContext(ctx).Get(c.opts.healthPath)
	if err != nil {
		return ConnectionStatus{Message: err.Error()}
	}
	st := ConnectionStatus{StatusCode: resp.StatusCode(), Success: !resp.IsError()}
	if st.Success {
		st.Message = "Sync server connection successful"
	} else {
		st.Message = fmt.Sprintf("Sync server returned %s", resp.Status())
	}
	return st
}
