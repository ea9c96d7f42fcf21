// Package gcs provides a capture store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/techscan/internal/crawler"
)

const captureContentType = "text/plain; charset=utf-8"

// Config captures the bucket and object prefix for capture objects.
type Config struct {
	Bucket string
	Prefix string
}

// Store streams capture objects to a GCS bucket.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed capture store.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Create starts a resumable upload that replaces any existing object once
// the writer is closed.
func (s *Store) Create(ctx context.Context, name string) (crawler.CaptureWriter, error) {
	key, err := s.objectKey(name)
	if err != nil {
		return nil, err
	}
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = captureContentType
	return &objectWriter{Writer: w, uri: fmt.Sprintf("gs://%s/%s", s.bucket, key)}, nil
}

// Open downloads a capture object.
func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key, err := s.objectKey(name)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", name, crawler.ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", s.bucket, key, err)
	}
	return r, nil
}

func (s *Store) objectKey(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("capture name is required")
	}
	if s.prefix == "" {
		return name, nil
	}
	return path.Join(s.prefix, name), nil
}

type objectWriter struct {
	*storage.Writer
	uri string
}

func (w *objectWriter) URI() string {
	return w.uri
}
