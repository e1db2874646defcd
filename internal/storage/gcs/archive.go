// Package gcs archives raw upstream payloads in Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/mention-radar/internal/radar"
	rootstorage "github.com/JakeFAU/mention-radar/internal/storage"
)

// Config captures the bucket and object prefix.
type Config struct {
	Bucket string
	Prefix string
}

type writerFactory func(ctx context.Context, bucket, object string) io.WriteCloser

// Archive writes payloads to a configured GCS bucket.
type Archive struct {
	cfg       Config
	clock     radar.Clock
	newWriter writerFactory
	setType   func(w io.WriteCloser, contentType string)
}

// New creates a GCS-backed archive.
func New(client *storage.Client, cfg Config, clock radar.Clock) (*Archive, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	factory := func(ctx context.Context, bucket, object string) io.WriteCloser {
		return client.Bucket(bucket).Object(object).NewWriter(ctx)
	}
	a, err := newArchive(cfg, clock, factory)
	if err != nil {
		return nil, err
	}
	a.setType = func(w io.WriteCloser, contentType string) {
		if gw, ok := w.(*storage.Writer); ok {
			gw.ContentType = contentType
		}
	}
	return a, nil
}

func newArchive(cfg Config, clock radar.Clock, factory writerFactory) (*Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &Archive{cfg: cfg, clock: clock, newWriter: factory}, nil
}

// Archive uploads payload and returns its gs:// URI.
func (a *Archive) Archive(
	ctx context.Context,
	source radar.Source,
	label string,
	contentType string,
	payload []byte,
) (string, error) {
	object := rootstorage.ObjectPath(a.cfg.Prefix, source, label, contentType, a.clock.Now())
	writer := a.newWriter(ctx, a.cfg.Bucket, object)
	if a.setType != nil && contentType != "" {
		a.setType(writer, contentType)
	}
	if _, err := io.Copy(writer, bytes.NewReader(payload)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", a.cfg.Bucket, object), nil
}
