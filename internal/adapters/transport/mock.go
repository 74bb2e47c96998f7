package transport

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/okian/floodwatch/internal/domain/model"
	"github.com/okian/floodwatch/pkg/logger"
)

// MockServer accepts every payload locally. It is the demo transport.
type MockServer struct {
	opts options
	now  func() time.Time
}

var (
	_ Deliverer = (*MockServer)(nil)
	_ Pinger    = (*MockServer)(nil)
)

// NewMockServer returns a deliverer that always succeeds.
func NewMockServer(opts ...Option) *MockServer {
	return &MockServer{opts: apply(opts), now: time.Now}
}

// Deliver returns a fresh SRV_ receipt.
func (m *MockServer) Deliver(ctx context.Context, p model.SyncPayload) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	rec := Receipt{ServerID: "SRV_" + uuid.NewString(), ServerTimestamp: m.now().UTC()}
	m.opts.log.Debug(ctx, "mock delivery accepted",
		logger.Int64("submission_id", p.SubmissionID),
		logger.String("server_id", rec.ServerID))
	return rec, nil
}

// Ping always reports success.
func (m *MockServer) Ping(context.Context) ConnectionStatus {
	return ConnectionStatus{Success: true, StatusCode: 200, Message: "Sync server connection successful (Demo Mode)"}
}

// LocalPhotoCheck verifies the photo exists locally without moving it.
type LocalPhotoCheck struct {
	opts options
}

var _ PhotoTransfer = (*LocalPhotoCheck)(nil)

// NewLocalPhotoCheck returns a photo transfer that only checks the upload dir.
func NewLocalPhotoCheck(opts ...Option) *LocalPhotoCheck {
	return &LocalPhotoCheck{opts: apply(opts)}
}

// TransferPhoto warns when the file is absent and never fails on that.
func (l *LocalPhotoCheck) TransferPhoto(ctx context.Context, filename string) error {
	if filename == "" {
		return nil
	}
	path := filepath.Join(l.opts.uploadDir, filepath.Base(filename))
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.opts.log.Warn(ctx, "photo file not found, continuing", logger.String("path", path))
			return nil
		}
		return err
	}
	l.opts.log.Debug(ctx, "photo present", logger.String("path", path))
	return nil
}
