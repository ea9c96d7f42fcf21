// Package detector decides whether a statically fetched page is a client-side
// rendered shell whose technologies only show up after JavaScript runs.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/JakeFAU/techscan/internal/crawler"
)

const defaultThreshold = 2048

// Heuristic flags pages for rendering with a few markup rules.
type Heuristic struct {
	// BodyLengthThreshold is the size below which a script-heavy page counts
	// as a shell.
	BodyLengthThreshold int
}

// NewHeuristic creates a detector; threshold 0 uses 2 KiB.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

// Mount points left empty by the common SPA frameworks.
var shellMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="__nuxt"`),
	[]byte(`id="root"></div>`),
	[]byte(`id="app"></div>`),
	[]byte(`<app-root></app-root>`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// ShouldRender reports whether resp looks like it needs a browser. Only
// successful responses qualify.
func (h *Heuristic) ShouldRender(resp crawler.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	body := resp.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	if bytes.Contains(bytes.ToLower(body), []byte("<noscript>you need to enable javascript")) {
		return true
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range shellMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh reports whether script elements cover at least a quarter
// of the document.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagEnd := strings.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			covered += total - start
			break
		}
		contentStart := start + tagEnd + 1

		next := total
		if end := strings.Index(lower[contentStart:], closeTag); end != -1 {
			next = contentStart + end + len(closeTag)
		}
		covered += next - start
		pos = next
	}
	return covered*100/total >= 25
}
