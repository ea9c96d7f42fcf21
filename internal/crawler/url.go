package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var schemePrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// ResolveResource turns a stylesheet or script reference found on a page into
// an absolute URL. origin is the page's scheme and host without a trailing
// slash. The boolean is false when the reference names no resource.
// Relative paths are joined verbatim; dot segments are not collapsed.
func ResolveResource(ref, origin string) (string, bool) {
	switch {
	case ref == "" || ref == "/":
		return "", false
	case strings.HasPrefix(ref, "//"):
		return "https:" + ref, true
	case strings.HasPrefix(ref, "/"):
		return origin + ref, true
	case strings.HasPrefix(ref, "http"):
		return ref, true
	default:
		return origin + "/" + ref, true
	}
}

// Origin returns scheme://host[:port] for an absolute page URL.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

// NormalizeFilename derives the capture object identifier for a page URL.
// The scheme prefix is dropped, the first '?' becomes ',', every '/' becomes
// '_', every '#' becomes "35" (its code point) and the result is lower-cased.
// Distinct URLs may collide; the last writer wins.
func NormalizeFilename(rawURL string) string {
	name := schemePrefix.ReplaceAllString(rawURL, "")
	name = strings.Replace(name, "?", ",", 1)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "#", "35")
	return strings.ToLower(name)
}

// CaptureObjectName returns the capture object name for a page URL.
func CaptureObjectName(rawURL string) string {
	return NormalizeFilename(rawURL) + CaptureExtension
}

// CaptureExtension is appended to every capture object name.
const CaptureExtension = ".txt"
