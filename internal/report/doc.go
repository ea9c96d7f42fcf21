// Package report writes the aggregate result of a run: the JSON results file
// and an optional Markdown summary. Both are replaced atomically so readers
// never observe a partial file.
package report
