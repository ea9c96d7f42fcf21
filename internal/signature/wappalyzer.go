package signature

import (
	"fmt"
	"sort"

	wappalyzer "github.com/projectdiscovery/wappalyzergo"
)

// Wappalyzer classifies captured text with the wappalyzer fingerprint
// database. Only body fingerprints apply; captures carry no response headers.
type Wappalyzer struct {
	client *wappalyzer.Wappalyze
}

// NewWappalyzer loads the embedded fingerprint database.
func NewWappalyzer() (*Wappalyzer, error) {
	client, err := wappalyzer.New()
	if err != nil {
		return nil, fmt.Errorf("load wappalyzer fingerprints: %w", err)
	}
	return &Wappalyzer{client: client}, nil
}

// Match returns detected technology names sorted alphabetically. Names may
// carry a ":version" suffix when the database extracts one.
func (w *Wappalyzer) Match(text string) []string {
	found := w.client.Fingerprint(map[string][]string{}, []byte(text))
	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
