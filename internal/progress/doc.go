// Package progress carries scan progress events from workers to sinks.
//
// Capturers and workers emit Events through an Emitter, normally a Recorder
// that stamps the run ID and timestamp and forwards to a Hub. The Hub never
// blocks the emitter: events are buffered, batched on a background goroutine
// and fanned out to Sinks such as the zap log sink and the Prometheus sink in
// the sinks subpackage.
package progress
