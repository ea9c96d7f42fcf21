// Package memory keeps capture objects in memory, for tests and dry runs.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/JakeFAU/techscan/internal/crawler"
)

// Store keeps capture objects in a map. Writes become visible on Close.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewStore creates an empty in-memory capture store.
func NewStore() *Store {
	return &Store{objects: make(map[string][]byte)}
}

// Create truncates the named object and returns a buffered writer for it.
func (s *Store) Create(_ context.Context, name string) (crawler.CaptureWriter, error) {
	if name == "" {
		return nil, fmt.Errorf("capture name is required")
	}
	s.mu.Lock()
	s.objects[name] = []byte{}
	s.mu.Unlock()
	return &writer{store: s, name: name}, nil
}

// Open returns a reader over a copy of the named object.
func (s *Store) Open(_ context.Context, name string) (io.ReadCloser, error) {
	data, ok := s.Get(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, crawler.ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Get returns a copy of the named object.
func (s *Store) Get(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Names lists stored objects in lexical order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type writer struct {
	store  *Store
	name   string
	buf    bytes.Buffer
	closed bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write %s: writer closed", w.name)
	}
	return w.buf.Write(p)
}

func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.store.mu.Lock()
	w.store.objects[w.name] = append([]byte(nil), w.buf.Bytes()...)
	w.store.mu.Unlock()
	return nil
}

func (w *writer) URI() string {
	return "memory://" + w.name
}
