package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/JakeFAU/techscan/internal/crawler"
)

// JSONWriter writes the results file: a JSON array of [url, [tech, ...]] pairs.
type JSONWriter struct {
	path string
}

// NewJSONWriter returns a writer targeting path.
func NewJSONWriter(path string) *JSONWriter {
	return &JSONWriter{path: path}
}

// Name identifies the sink in logs and metrics.
func (*JSONWriter) Name() string { return "json" }

// Path returns the results file location.
func (w *JSONWriter) Path() string { return w.path }

// Write replaces the results file with results.
func (w *JSONWriter) Write(ctx context.Context, _ crawler.RunSummary, results crawler.AggregateResult) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return writeFileAtomic(w.path, func(out io.Writer) error {
		return EncodeJSON(out, results)
	})
}

// EncodeJSON writes results in the results file format. A nil aggregate is
// encoded as an empty array.
func EncodeJSON(out io.Writer, results crawler.AggregateResult) error {
	if results == nil {
		results = crawler.AggregateResult{}
	}
	if err := json.NewEncoder(out).Encode(results); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}

// ReadJSON loads a results file written by JSONWriter.
func ReadJSON(path string) (crawler.AggregateResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	var results crawler.AggregateResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decode results %s: %w", path, err)
	}
	return results, nil
}
