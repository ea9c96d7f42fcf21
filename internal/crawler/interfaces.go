package crawler

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// CaptureStore owns the per-page capture objects. Create truncates any object
// left behind under the same name by a previous run.
type CaptureStore interface {
	Create(ctx context.Context, name string) (CaptureWriter, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// CaptureWriter receives the captured byte stream for one page.
type CaptureWriter interface {
	io.WriteCloser
	// URI identifies the persisted object once Close has returned.
	URI() string
}

// Classifier returns the technology names detected in captured text.
type Classifier interface {
	Match(text string) []string
}

// ResultStore persists the page results of a completed run.
type ResultStore interface {
	SaveRun(ctx context.Context, summary RunSummary, results AggregateResult) error
	Close() error
}

// Publisher pushes run-complete notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}
