// Package capture fetches a page, intercepts its stylesheets and scripts,
// persists the combined bytes as a capture object and classifies them.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/techscan/internal/crawler"
	"github.com/JakeFAU/techscan/internal/hash/sha256"
	"github.com/JakeFAU/techscan/internal/logging"
	"github.com/JakeFAU/techscan/internal/progress"
	"github.com/JakeFAU/techscan/internal/telemetry"
)

// Config wires the Capturer's collaborators. Fetcher, Store and Classifier
// are required.
type Config struct {
	Fetcher    crawler.Fetcher
	Store      crawler.CaptureStore
	Classifier crawler.Classifier
	Clock      crawler.Clock
	Progress   progress.Emitter
	Logger     *zap.Logger
}

// Capturer captures single pages. It holds no per-page state and may be
// shared by workers; WithWorker scopes logs and events to one of them.
type Capturer struct {
	fetcher    crawler.Fetcher
	store      crawler.CaptureStore
	classifier crawler.Classifier
	now        func() time.Time
	events     progress.Emitter
	logger     *zap.Logger
	worker     int
}

// New validates cfg and builds a Capturer.
func New(cfg Config) (*Capturer, error) {
	switch {
	case cfg.Fetcher == nil:
		return nil, errors.New("capture: fetcher is required")
	case cfg.Store == nil:
		return nil, errors.New("capture: store is required")
	case cfg.Classifier == nil:
		return nil, errors.New("capture: classifier is required")
	}
	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock.Now
	}
	return &Capturer{
		fetcher:    cfg.Fetcher,
		store:      cfg.Store,
		classifier: cfg.Classifier,
		now:        now,
		events:     progress.OrNop(cfg.Progress),
		logger:     logging.OrNop(cfg.Logger).Named("capture"),
		worker:     -1,
	}, nil
}

// WithWorker returns a copy tagged with the worker index.
func (c *Capturer) WithWorker(index int) *Capturer {
	scoped := *c
	scoped.worker = index
	scoped.logger = c.logger.With(zap.Int("worker", index))
	return &scoped
}

type resourceStats struct {
	fetched, skipped, failed int
}

// Capture processes one page: fetch, intercept resources, write them in
// document order followed by the page body, read the object back and
// classify it. Page fetch failures wrap crawler.ErrPageFetch; storage
// failures wrap crawler.ErrCapture. Either way no result is produced.
func (c *Capturer) Capture(ctx context.Context, task crawler.PageTask) (crawler.PageResult, error) {
	start := c.now()
	logger := c.logger.With(zap.String("url", task.URL))
	ctx, span := telemetry.StartSpan(ctx, "capture page",
		attribute.String("url", task.URL),
		attribute.Int("worker", c.worker),
	)
	defer span.End()

	result, err := c.capture(ctx, logger, task, start)
	if err != nil {
		telemetry.RecordError(span, err)
		logger.Error("page capture failed", zap.Error(err))
		c.events.Emit(progress.Event{
			Stage:  progress.StagePageError,
			Worker: c.worker,
			URL:    task.URL,
			Dur:    c.since(start),
			Note:   err.Error(),
		})
		return crawler.PageResult{}, err
	}

	info := result.Capture
	span.SetAttributes(
		attribute.Int("http.status_code", info.StatusCode),
		attribute.StringSlice("technologies", result.Technologies),
	)
	logger.Info("page captured",
		zap.Int("status", info.StatusCode),
		zap.Int64("bytes", info.Bytes),
		zap.Int("resources", info.ResourcesFetched),
		zap.Strings("technologies", result.Technologies),
		zap.Duration("duration", info.Duration),
	)
	c.events.Emit(progress.Event{
		Stage:       progress.StagePageDone,
		Worker:      c.worker,
		URL:         task.URL,
		Bytes:       info.Bytes,
		StatusClass: progress.ClassifyStatus(info.StatusCode),
		Techs:       len(result.Technologies),
		Dur:         info.Duration,
	})
	return result, nil
}

func (c *Capturer) capture(ctx context.Context, logger *zap.Logger, task crawler.PageTask, start time.Time) (crawler.PageResult, error) {
	origin, err := crawler.Origin(task.URL)
	if err != nil {
		return crawler.PageResult{}, fmt.Errorf("%w: %w", crawler.ErrPageFetch, err)
	}

	page, err := c.fetcher.Fetch(ctx, crawler.FetchRequest{URL: task.URL, Kind: crawler.KindPage})
	if err != nil {
		return crawler.PageResult{}, fmt.Errorf("%w: %w", crawler.ErrPageFetch, err)
	}
	if page.StatusCode >= http.StatusBadRequest {
		logger.Warn("page returned error status; capturing body anyway", zap.Int("status", page.StatusCode))
	}
	if page.Truncated {
		logger.Warn("page body truncated at fetch size cap", zap.Int("bytes", len(page.Body)))
	}

	name := crawler.CaptureObjectName(task.URL)
	w, err := c.store.Create(ctx, name)
	if err != nil {
		return crawler.PageResult{}, fmt.Errorf("%w: %w", crawler.ErrCapture, err)
	}
	closed := false
	defer func() {
		if !closed {
			_ = w.Close()
		}
	}()

	digest := sha256.NewDigest()
	out := io.MultiWriter(w, digest)

	stats, err := c.appendResources(ctx, logger, out, origin, page.Body)
	if err != nil {
		return crawler.PageResult{}, err
	}
	if _, err := out.Write(page.Body); err != nil {
		return crawler.PageResult{}, fmt.Errorf("%w: write page body: %w", crawler.ErrCapture, err)
	}
	closed = true
	if err := w.Close(); err != nil {
		return crawler.PageResult{}, fmt.Errorf("%w: close %s: %w", crawler.ErrCapture, name, err)
	}

	text, err := c.readBack(ctx, name)
	if err != nil {
		return crawler.PageResult{}, err
	}
	techs := c.classifier.Match(text)
	if techs == nil {
		techs = []string{}
	}

	return crawler.PageResult{
		URL:          task.URL,
		Technologies: techs,
		Capture: crawler.CaptureInfo{
			Object:           name,
			URI:              w.URI(),
			Bytes:            digest.Len(),
			SHA256:           digest.Sum(),
			StatusCode:       page.StatusCode,
			ResourcesFetched: stats.fetched,
			ResourcesSkipped: stats.skipped,
			ResourcesFailed:  stats.failed,
			CapturedAt:       start,
			Duration:         c.since(start),
			RenderedHeadless: page.UsedHeadless,
		},
	}, nil
}

// appendResources fetches each intercepted reference in document order and
// appends its body to out. Fetch failures are logged and skipped; write
// failures and cancellation abort the page.
func (c *Capturer) appendResources(ctx context.Context, logger *zap.Logger, out io.Writer, origin string, body []byte) (resourceStats, error) {
	var stats resourceStats
	refs, err := References(body)
	if err != nil {
		logger.Warn("skipping resource interception", zap.Error(err))
		return stats, nil
	}

	for _, ref := range refs {
		resolved, ok := crawler.ResolveResource(ref.Ref, origin)
		if !ok {
			stats.skipped++
			logger.Debug("reference skipped", zap.String("kind", ref.Kind), zap.Error(crawler.ErrNoResource))
			continue
		}
		rlog := logger.With(zap.String("resource", resolved), zap.String("kind", ref.Kind))

		resp, err := c.fetcher.Fetch(ctx, crawler.FetchRequest{URL: resolved, Kind: ref.Kind})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, fmt.Errorf("%w: %w", crawler.ErrPageFetch, ctxErr)
			}
			stats.failed++
			rlog.Warn("resource fetch failed", zap.Error(fmt.Errorf("%w: %w", crawler.ErrResourceFetch, err)))
			c.events.Emit(progress.Event{
				Stage:  progress.StageResourceError,
				Worker: c.worker,
				URL:    resolved,
				Kind:   ref.Kind,
				Note:   err.Error(),
			})
			continue
		}

		if resp.Truncated {
			stats.skipped++
			rlog.Warn("resource skipped: body exceeds fetch size cap", zap.Int("bytes", len(resp.Body)))
			c.events.Emit(progress.Event{
				Stage:  progress.StageResourceError,
				Worker: c.worker,
				URL:    resolved,
				Kind:   ref.Kind,
				Note:   "body truncated",
			})
			continue
		}

		if _, err := out.Write(resp.Body); err != nil {
			return stats, fmt.Errorf("%w: write resource %s: %w", crawler.ErrCapture, resolved, err)
		}
		stats.fetched++
		rlog.Debug("resource captured", zap.Int("status", resp.StatusCode), zap.Int("bytes", len(resp.Body)))
		c.events.Emit(progress.Event{
			Stage:       progress.StageResourceDone,
			Worker:      c.worker,
			URL:         resolved,
			Kind:        ref.Kind,
			Bytes:       int64(len(resp.Body)),
			StatusClass: progress.ClassifyStatus(resp.StatusCode),
			Dur:         resp.Duration,
		})
	}
	return stats, nil
}

func (c *Capturer) readBack(ctx context.Context, name string) (string, error) {
	r, err := c.store.Open(ctx, name)
	if err != nil {
		return "", fmt.Errorf("%w: reopen %s: %w", crawler.ErrCapture, name, err)
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: read back %s: %w", crawler.ErrCapture, name, err)
	}
	return string(data), nil
}

func (c *Capturer) since(start time.Time) time.Duration {
	d := c.now().Sub(start)
	if d < 0 {
		return 0
	}
	return d
}
