// Package local implements a filesystem capture store.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/techscan/internal/crawler"
)

// Config captures the parameters for the filesystem capture store.
type Config struct {
	// Dir is the directory holding the <name>.txt capture objects.
	Dir string
}

// Store writes capture objects to a directory.
type Store struct {
	dir string
}

// New creates the directory when missing and verifies it is writable.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("capture directory is required")
	}

	info, err := os.Stat(cfg.Dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(cfg.Dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create capture directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat capture directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("capture path %s is not a directory", cfg.Dir)
	}

	probe, err := os.CreateTemp(cfg.Dir, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("capture directory is not writable: %w", err)
	}
	_ = probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("remove write probe: %w", err)
	}

	return &Store{dir: filepath.Clean(cfg.Dir)}, nil
}

// Dir returns the capture directory.
func (s *Store) Dir() string {
	return s.dir
}

// Create truncates or creates the named capture object.
func (s *Store) Create(_ context.Context, name string) (crawler.CaptureWriter, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is confined to the capture directory by resolve.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create capture %s: %w", name, err)
	}
	return &fileWriter{File: f, uri: "file://" + path}, nil
}

// Open reads a capture object back.
func (s *Store) Open(_ context.Context, name string) (io.ReadCloser, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is confined to the capture directory by resolve.
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, crawler.ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", name, err)
	}
	return f, nil
}

func (s *Store) resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("capture name is required")
	}
	path := filepath.Clean(filepath.Join(s.dir, name))
	if !strings.HasPrefix(path, s.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("capture name %q escapes %s", name, s.dir)
	}
	return path, nil
}

type fileWriter struct {
	*os.File
	uri string
}

func (w *fileWriter) URI() string {
	return w.uri
}
