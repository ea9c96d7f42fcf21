// Package dispatcher partitions a URL list across a bounded pool of chunk
// workers and aggregates their results once every worker has reported.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/techscan/internal/config"
	"github.com/JakeFAU/techscan/internal/crawler"
	"github.com/JakeFAU/techscan/internal/logging"
	"github.com/JakeFAU/techscan/internal/metrics"
	"github.com/JakeFAU/techscan/internal/progress"
	"github.com/JakeFAU/techscan/internal/telemetry"
	"github.com/JakeFAU/techscan/internal/worker"
)

var (
	// ErrRunInProgress is returned when Run is called while another run is active.
	ErrRunInProgress = errors.New("run already in progress")
	// ErrIncomplete is returned when the context ends before every worker reported.
	ErrIncomplete = errors.New("run incomplete")
)

// Sink persists the aggregate of a completed run.
type Sink interface {
	Name() string
	Write(ctx context.Context, summary crawler.RunSummary, results crawler.AggregateResult) error
}

// Config wires a Dispatcher.
type Config struct {
	Workers    int
	MaxWorkers int
	// NewCapturer returns the capturer used by the worker with the given chunk index.
	NewCapturer func(worker int) worker.PageCapturer
	// Results is the primary sink. A failure here fails the run.
	Results Sink
	// Extra sinks run after Results succeeded. Their failures are reported
	// but the results file stays in place.
	Extra    []Sink
	Progress progress.Emitter
	Clock    crawler.Clock
	IDs      crawler.IDGenerator
	Logger   *zap.Logger
}

// Status is a point-in-time view of the current or last run.
type Status struct {
	RunID      string    `json:"run_id,omitempty"`
	Running    bool      `json:"running"`
	URLs       int       `json:"urls"`
	Dispatched int       `json:"dispatched"`
	Completed  int       `json:"completed"`
	Results    int       `json:"results"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	Error      string    `json:"error,omitempty"`
}

// Outcome is what a completed run produced.
type Outcome struct {
	Summary crawler.RunSummary
	Results crawler.AggregateResult
}

// Dispatcher runs scans.
type Dispatcher struct {
	cfg     Config
	events  progress.Emitter
	logger  *zap.Logger
	running atomic.Bool
	status  atomic.Pointer[Status]
}

// New validates cfg and returns a Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = cfg.Workers
	}
	if err := config.ValidateWorkers(cfg.Workers, cfg.MaxWorkers); err != nil {
		return nil, err
	}
	switch {
	case cfg.NewCapturer == nil:
		return nil, errors.New("dispatcher: capturer factory is required")
	case cfg.Results == nil:
		return nil, errors.New("dispatcher: results sink is required")
	case cfg.Clock == nil:
		return nil, errors.New("dispatcher: clock is required")
	case cfg.IDs == nil:
		return nil, errors.New("dispatcher: id generator is required")
	}
	d := &Dispatcher{
		cfg:    cfg,
		events: progress.OrNop(cfg.Progress),
		logger: logging.OrNop(cfg.Logger).Named("dispatcher"),
	}
	d.status.Store(&Status{})
	return d, nil
}

// Status returns a snapshot for status endpoints.
func (d *Dispatcher) Status() Status {
	return *d.status.Load()
}

// Run splits urls into contiguous chunks, starts one worker per chunk and
// waits for every worker's message. The aggregate is persisted once, after the
// last message; a run that ends early persists nothing and returns an error
// wrapping ErrIncomplete.
func (d *Dispatcher) Run(ctx context.Context, urls []string) (Outcome, error) {
	if !d.running.CompareAndSwap(false, true) {
		return Outcome{}, ErrRunInProgress
	}
	defer d.running.Store(false)

	runID, err := d.cfg.IDs.NewRunID()
	if err != nil {
		return Outcome{}, fmt.Errorf("generate run id: %w", err)
	}
	events := progress.NewRecorder(d.events, runID, d.cfg.Clock.Now)
	logger := d.logger.With(zap.String("run_id", runID.String()))

	started := d.cfg.Clock.Now()
	chunks := crawler.Chunkify(urls, d.cfg.Workers)
	ctx, span := telemetry.StartSpan(ctx, "scan",
		attribute.String("run_id", runID.String()),
		attribute.Int("urls", len(urls)),
		attribute.Int("workers", len(chunks)),
	)
	defer span.End()
	state := Status{
		RunID:      runID.String(),
		Running:    true,
		URLs:       len(urls),
		Dispatched: len(chunks),
		StartedAt:  started,
	}
	d.publish(state)
	events.Emit(progress.Event{Stage: progress.StageRunStart, Worker: -1, Note: fmt.Sprintf("%d urls, %d workers", len(urls), len(chunks))})
	logger.Info("run started", zap.Int("urls", len(urls)), zap.Int("workers", len(chunks)))

	// Buffered so a worker's single send never blocks, even after Run returned early.
	messages := make(chan worker.Message, len(chunks))
	// Workers never cancel each other; a failed chunk only loses its own pages.
	var group errgroup.Group
	group.SetLimit(d.cfg.MaxWorkers)
	for _, chunk := range chunks {
		w := worker.New(chunk, d.cfg.NewCapturer(chunk.Index), events, d.cfg.Logger)
		group.Go(func() error {
			return w.Run(ctx, messages)
		})
	}

	aggregate := make(crawler.AggregateResult, 0, len(urls))
	for state.Completed < len(chunks) {
		select {
		case msg := <-messages:
			state.Completed++
			state.Failed += msg.Failed
			aggregate = append(aggregate, msg.Results...)
			state.Results = len(aggregate)
			if msg.Err != nil {
				logger.Error("worker finished with error", zap.Int("worker", msg.Worker), zap.Error(msg.Err))
			}
			d.publish(state)
		case <-ctx.Done():
			if werr := group.Wait(); werr != nil {
				logger.Debug("workers stopped", zap.Error(werr))
			}
			err := fmt.Errorf("%w: %d/%d workers reported: %w", ErrIncomplete, state.Completed, len(chunks), ctx.Err())
			d.fail(span, state, events, logger, err)
			return Outcome{}, err
		}
	}
	if err := group.Wait(); err != nil {
		span.RecordError(err)
		logger.Warn("run completed with worker errors", zap.Error(err), zap.Int("failed", state.Failed))
	}

	finished := d.cfg.Clock.Now()
	elapsed := finished.Sub(started)
	logger.Info("workers finished",
		zap.String("timing", fmt.Sprintf("%d workers took %dms", len(chunks), elapsed.Milliseconds())),
		zap.Int("workers", len(chunks)),
		zap.Duration("duration", elapsed),
	)

	summary := crawler.RunSummary{
		RunID:      runID.String(),
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   elapsed,
		Workers:    len(chunks),
		URLs:       len(urls),
		Captured:   len(aggregate),
		Failed:     state.Failed,
	}
	if p, ok := d.cfg.Results.(interface{ Path() string }); ok {
		summary.ResultPath = p.Path()
	}
	outcome := Outcome{Summary: summary, Results: aggregate}

	if err := d.write(ctx, d.cfg.Results, summary, aggregate, logger); err != nil {
		d.fail(span, state, events, logger, err)
		return outcome, err
	}
	var extraErrs []error
	for _, sink := range d.cfg.Extra {
		if err := d.write(ctx, sink, summary, aggregate, logger); err != nil {
			extraErrs = append(extraErrs, err)
		}
	}

	state.Running = false
	if err := errors.Join(extraErrs...); err != nil {
		telemetry.RecordError(span, err)
		state.Error = err.Error()
		d.publish(state)
		events.Emit(progress.Event{Stage: progress.StageRunDone, Worker: -1, Dur: elapsed, Techs: len(aggregate), Note: err.Error()})
		return outcome, err
	}
	d.publish(state)
	events.Emit(progress.Event{Stage: progress.StageRunDone, Worker: -1, Dur: elapsed, Techs: len(aggregate)})
	logger.Info("run complete", zap.Int("results", len(aggregate)), zap.Int("failed", state.Failed))
	return outcome, nil
}

func (d *Dispatcher) write(
	ctx context.Context,
	sink Sink,
	summary crawler.RunSummary,
	results crawler.AggregateResult,
	logger *zap.Logger,
) error {
	err := sink.Write(ctx, summary, results)
	metrics.ObserveResultWrite(sink.Name(), err)
	if err != nil {
		logger.Error("results sink failed", zap.String("sink", sink.Name()), zap.Error(err))
		return fmt.Errorf("%s sink: %w", sink.Name(), err)
	}
	logger.Debug("results written", zap.String("sink", sink.Name()), zap.Int("results", len(results)))
	return nil
}

func (d *Dispatcher) fail(span trace.Span, state Status, events progress.Emitter, logger *zap.Logger, err error) {
	telemetry.RecordError(span, err)
	state.Running = false
	state.Error = err.Error()
	d.publish(state)
	events.Emit(progress.Event{Stage: progress.StageRunError, Worker: -1, Note: err.Error()})
	logger.Error("run failed", zap.Error(err))
}

func (d *Dispatcher) publish(state Status) {
	d.status.Store(&state)
}
