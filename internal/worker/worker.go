// Package worker runs one chunk of page tasks sequentially and reports the
// chunk's results as a single message.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/techscan/internal/crawler"
	"github.com/JakeFAU/techscan/internal/logging"
	"github.com/JakeFAU/techscan/internal/metrics"
	"github.com/JakeFAU/techscan/internal/progress"
)

// ErrPanic marks a worker that panicked; its chunk yields no results.
var ErrPanic = errors.New("worker panicked")

// PageCapturer captures and classifies one page.
type PageCapturer interface {
	Capture(ctx context.Context, task crawler.PageTask) (crawler.PageResult, error)
}

// Message is the single completion report a worker sends.
type Message struct {
	// Worker is the chunk index.
	Worker  int
	Results []crawler.PageResult
	// Failed counts pages that produced no result, including pages skipped
	// after cancellation.
	Failed int
	// Err is set when the worker did not finish its chunk normally.
	Err error
}

// Worker owns one chunk.
type Worker struct {
	chunk    crawler.Chunk
	capturer PageCapturer
	events   progress.Emitter
	logger   *zap.Logger
}

// New builds a Worker for chunk.
func New(chunk crawler.Chunk, capturer PageCapturer, events progress.Emitter, logger *zap.Logger) *Worker {
	return &Worker{
		chunk:    chunk,
		capturer: capturer,
		events:   progress.OrNop(events),
		logger:   logging.OrNop(logger).Named("worker").With(zap.Int("worker", chunk.Index)),
	}
}

// Run captures the chunk's pages one after another and sends exactly one
// Message on out, also when a capture panics. out must have room for the
// message or a ready receiver. The returned error is the Message's Err.
func (w *Worker) Run(ctx context.Context, out chan<- Message) (err error) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	msg := Message{Worker: w.chunk.Index}
	defer func() {
		if r := recover(); r != nil {
			msg = Message{
				Worker:  w.chunk.Index,
				Results: []crawler.PageResult{},
				Failed:  w.chunk.Len(),
				Err:     fmt.Errorf("%w: %v", ErrPanic, r),
			}
			w.logger.Error("worker panicked; discarding chunk results", zap.Any("panic", r), zap.Stack("stack"))
		}
		note := ""
		if msg.Err != nil {
			note = msg.Err.Error()
		}
		w.events.Emit(progress.Event{Stage: progress.StageWorkerDone, Worker: w.chunk.Index, Note: note})
		out <- msg
		err = msg.Err
	}()

	msg.Results, msg.Failed, msg.Err = w.process(ctx)
	return
}

func (w *Worker) process(ctx context.Context) ([]crawler.PageResult, int, error) {
	total := w.chunk.Len()
	results := make([]crawler.PageResult, 0, total)
	failed := 0
	for i, task := range w.chunk.Tasks {
		if err := ctx.Err(); err != nil {
			skipped := total - i
			w.logger.Warn("worker stopped early", zap.Int("skipped", skipped), zap.Error(err))
			return results, failed + skipped, fmt.Errorf("worker %d canceled: %w", w.chunk.Index, err)
		}
		w.logger.Info("capturing page",
			zap.String("progress", fmt.Sprintf("%d/%d", i+1, total)),
			zap.String("url", task.URL),
		)
		result, err := w.capturer.Capture(ctx, task)
		if err != nil {
			failed++
			w.logger.Debug("page yielded no result", zap.String("url", task.URL), zap.Error(err))
			continue
		}
		results = append(results, result)
	}
	w.logger.Debug("chunk finished", zap.Int("results", len(results)), zap.Int("failed", failed))
	return results, failed, nil
}
