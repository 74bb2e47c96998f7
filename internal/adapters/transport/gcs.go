package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/okian/floodwatch/pkg/logger"
	"google.golang.org/api/option"
)

// GCSPhotos copies submission photos into a Cloud Storage bucket.
type GCSPhotos struct {
	client *storage.Client
	bucket string
	opts   options
}

var _ PhotoTransfer = (*GCSPhotos)(nil)

// NewGCSPhotos opens a storage client. Without a credentials file the
// application default credentials are used.
func NewGCSPhotos(ctx context.Context, bucket string, opts ...Option) (*GCSPhotos, error) {
	if bucket == "" {
		return nil, ErrNoBucket
	}
	o := apply(opts)
	var clientOpts []option.ClientOption
	if o.credFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(o.credFile))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &GCSPhotos{client: client, bucket: bucket, opts: o}, nil
}

// ObjectName returns the object key a photo is stored under.
func (g *GCSPhotos) ObjectName(filename string) string {
	name := filepath.Base(filename)
	if g.opts.prefix == "" {
		return name
	}
	return path.Join(strings.Trim(g.opts.prefix, "/"), name)
}

// TransferPhoto streams the local file into the bucket. A missing local
// file is logged and treated as success.
func (g *GCSPhotos) TransferPhoto(ctx context.Context, filename string) error {
	if filename == "" {
		return nil
	}
	local := filepath.Join(g.opts.uploadDir, filepath.Base(filename))
	f, err := os.Open(local)
	if errors.Is(err, os.ErrNotExist) {
		g.opts.log.Warn(ctx, "photo file not found, continuing", logger.String("path", local))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPhotoTransfer, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, g.opts.timeout)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(g.ObjectName(filename)).NewWriter(ctx)
	w.ContentType = "image/jpeg"
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("%w: %w", ErrPhotoTransfer, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrPhotoTransfer, err)
	}
	return nil
}

// Close releases the storage client.
func (g *GCSPhotos) Close() error {
	return g.client.Close()
}
