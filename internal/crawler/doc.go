// Package crawler holds the shared vocabulary of the techscan pipeline: page
// tasks and chunks, page results, the fetch and storage interfaces, and the
// URL helpers used to resolve resource references and name capture objects.
package crawler
