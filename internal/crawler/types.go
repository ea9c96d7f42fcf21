// Package crawler defines core types shared across subsystems.
package crawler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PageTask is a single page URL scheduled for capture and classification.
type PageTask struct {
	URL string
}

// Chunk is a contiguous, non-empty run of PageTasks owned by one worker.
type Chunk struct {
	Index int
	Tasks []PageTask
}

// Len reports the number of tasks in the chunk.
func (c Chunk) Len() int {
	return len(c.Tasks)
}

// URLs returns the chunk's URLs in order.
func (c Chunk) URLs() []string {
	out := make([]string, 0, len(c.Tasks))
	for _, task := range c.Tasks {
		out = append(out, task.URL)
	}
	return out
}

// CaptureInfo describes the persisted capture object backing a PageResult.
type CaptureInfo struct {
	Object           string
	URI              string
	Bytes            int64
	SHA256           string
	StatusCode       int
	ResourcesFetched int
	ResourcesSkipped int
	ResourcesFailed  int
	CapturedAt       time.Time
	Duration         time.Duration
	RenderedHeadless bool
}

// PageResult pairs a page URL with the technologies detected in its capture.
// Only URL and Technologies are part of the serialized results file.
type PageResult struct {
	URL          string
	Technologies []string
	Capture      CaptureInfo
}

// MarshalJSON encodes the result as a two element array: [url, [tech, ...]].
func (r PageResult) MarshalJSON() ([]byte, error) {
	techs := r.Technologies
	if techs == nil {
		techs = []string{}
	}
	data, err := json.Marshal([]any{r.URL, techs})
	if err != nil {
		return nil, fmt.Errorf("marshal page result: %w", err)
	}
	return data, nil
}

// UnmarshalJSON decodes the [url, [tech, ...]] pair form.
func (r *PageResult) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("unmarshal page result: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("page result must have 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &r.URL); err != nil {
		return fmt.Errorf("unmarshal page url: %w", err)
	}
	if err := json.Unmarshal(pair[1], &r.Technologies); err != nil {
		return fmt.Errorf("unmarshal technologies: %w", err)
	}
	return nil
}

// AggregateResult is every PageResult of a run in worker completion order.
type AggregateResult []PageResult

// Fetch request kinds.
const (
	KindPage          = "page"
	KindStylesheet    = "stylesheet"
	KindScript        = "script"
	KindModulePreload = "modulepreload"
)

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
	// Kind is one of the Kind* constants.
	Kind string
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
	// Truncated is set when the body was cut at the fetcher's size cap.
	Truncated    bool
}

// RunSummary describes a finished run for notifications and result stores.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
	Workers    int           `json:"workers"`
	URLs       int           `json:"urls"`
	Captured   int           `json:"captured"`
	Failed     int           `json:"failed"`
	ResultPath string        `json:"result_path"`
}
