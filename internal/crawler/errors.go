package crawler

import "errors"

var (
	// ErrPageFetch marks a page whose document could not be fetched; the page
	// yields no PageResult and its worker moves on.
	ErrPageFetch = errors.New("page fetch failed")

	// ErrResourceFetch marks an intercepted stylesheet or script that could not
	// be fetched; the resource is omitted from the capture.
	ErrResourceFetch = errors.New("resource fetch failed")

	// ErrNoResource is reported when an intercepted reference resolves to no
	// fetchable resource ("" or "/").
	ErrNoResource = errors.New("reference names no resource")

	// ErrCapture marks a failure to persist or read back captured bytes.
	ErrCapture = errors.New("capture failed")

	// ErrObjectNotFound is returned by capture stores for unknown objects.
	ErrObjectNotFound = errors.New("capture object not found")
)
