// Package app initializes and holds the long-lived services of a scan, acting
// as the composition root for the CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	gcsstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/techscan/internal/api"
	"github.com/JakeFAU/techscan/internal/capture"
	"github.com/JakeFAU/techscan/internal/clock/system"
	"github.com/JakeFAU/techscan/internal/config"
	"github.com/JakeFAU/techscan/internal/crawler"
	"github.com/JakeFAU/techscan/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/techscan/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/techscan/internal/fetcher/headless"
	"github.com/JakeFAU/techscan/internal/headless/detector"
	"github.com/JakeFAU/techscan/internal/id/uuid"
	"github.com/JakeFAU/techscan/internal/logging"
	"github.com/JakeFAU/techscan/internal/progress"
	"github.com/JakeFAU/techscan/internal/progress/sinks"
	"github.com/JakeFAU/techscan/internal/publisher"
	pubsubpublisher "github.com/JakeFAU/techscan/internal/publisher/pubsub"
	"github.com/JakeFAU/techscan/internal/report"
	"github.com/JakeFAU/techscan/internal/signature"
	"github.com/JakeFAU/techscan/internal/storage/gcs"
	"github.com/JakeFAU/techscan/internal/storage/local"
	"github.com/JakeFAU/techscan/internal/storage/memory"
	"github.com/JakeFAU/techscan/internal/storage/postgres"
	"github.com/JakeFAU/techscan/internal/storage/sqlite"
	"github.com/JakeFAU/techscan/internal/telemetry"
	"github.com/JakeFAU/techscan/internal/worker"
)

// App holds the services shared by one CLI invocation.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	classifier crawler.Classifier
	names      []string
	store      crawler.CaptureStore
	hub        *progress.Hub
	dispatcher *dispatcher.Dispatcher
	server     *api.Server
	closers    []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

type options struct {
	registerer prometheus.Registerer
	fetcher    crawler.Fetcher
	store      crawler.CaptureStore
	publisher  crawler.Publisher
	clock      crawler.Clock
	ids        crawler.IDGenerator
}

// Option customizes New.
type Option func(*options)

// WithRegisterer registers progress metrics against reg instead of the
// default registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithFetcher replaces the configured fetcher.
func WithFetcher(f crawler.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithCaptureStore replaces the configured capture backend.
func WithCaptureStore(s crawler.CaptureStore) Option {
	return func(o *options) { o.store = s }
}

// WithPublisher replaces the Pub/Sub client used for run notifications.
func WithPublisher(p crawler.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithClock replaces the system clock.
func WithClock(c crawler.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithIDGenerator replaces the run ID generator.
func WithIDGenerator(g crawler.IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// New builds every service cfg asks for. It fails fast; services built before
// the failure are released.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	o := options{clock: system.New(), ids: uuid.New()}
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, logger: logging.OrNop(logger)}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Telemetry.Tracing {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.closers = append(a.closers, closer{name: "tracer provider", fn: tp.Shutdown})
	}

	a.classifier, a.names, err = loadSignatures(cfg.Signatures)
	if err != nil {
		return nil, err
	}
	a.logger.Info("signatures loaded", zap.String("source", cfg.Signatures.Source), zap.Int("count", len(a.names)))

	a.store = o.store
	if a.store == nil {
		if a.store, err = a.buildCaptureStore(ctx); err != nil {
			return nil, err
		}
	}

	fetcher := o.fetcher
	if fetcher == nil {
		if fetcher, err = a.buildFetcher(); err != nil {
			return nil, err
		}
	}

	promSink, err := sinks.NewPrometheusSink(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("register progress metrics: %w", err)
	}
	a.hub = progress.NewHub(progress.Config{Logger: a.logger}, sinks.NewLogSink(a.logger), promSink)
	a.closers = append(a.closers, closer{name: "progress hub", fn: a.hub.Close})

	capt, err := capture.New(capture.Config{
		Fetcher:    fetcher,
		Store:      a.store,
		Classifier: a.classifier,
		Clock:      o.clock,
		Progress:   a.hub,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init capturer: %w", err)
	}

	extra, err := a.buildResultSinks(ctx, o.publisher)
	if err != nil {
		return nil, err
	}

	a.dispatcher, err = dispatcher.New(dispatcher.Config{
		Workers:     cfg.Scan.Workers,
		MaxWorkers:  cfg.MaxWorkers(),
		NewCapturer: func(i int) worker.PageCapturer { return capt.WithWorker(i) },
		Results:     report.NewJSONWriter(cfg.Scan.ResultsPath),
		Extra:       extra,
		Progress:    a.hub,
		Clock:       o.clock,
		IDs:         o.ids,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Server.Addr != "" {
		a.server = api.NewServer(a.dispatcher, a, a.logger)
	}
	return a, nil
}

func loadSignatures(cfg config.SignaturesConfig) (crawler.Classifier, []string, error) {
	switch cfg.Source {
	case config.SourceBuiltin, "":
		table := signature.Default()
		return table, table.Names(), nil
	case config.SourceFile:
		table, err := signature.Load(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("load signatures: %w", err)
		}
		return table, table.Names(), nil
	case config.SourceWappalyzer:
		w, err := signature.NewWappalyzer()
		if err != nil {
			return nil, nil, err
		}
		return w, nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownSignatureSource, cfg.Source)
	}
}

func (a *App) buildCaptureStore(ctx context.Context) (crawler.CaptureStore, error) {
	switch a.cfg.Capture.Backend {
	case config.BackendLocal, "":
		store, err := local.New(local.Config{Dir: a.cfg.Capture.Dir})
		if err != nil {
			return nil, fmt.Errorf("init local capture store: %w", err)
		}
		a.logger.Info("capturing to local directory", zap.String("dir", store.Dir()))
		return store, nil
	case config.BackendMemory:
		a.logger.Info("capturing to memory; captures are discarded on exit")
		return memory.NewStore(), nil
	case config.BackendGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, closer{name: "gcs client", fn: func(context.Context) error { return client.Close() }})
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Capture.GCSBucket, Prefix: a.cfg.Capture.GCSPrefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs capture store: %w", err)
		}
		a.logger.Info("capturing to gcs", zap.String("bucket", a.cfg.Capture.GCSBucket))
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, a.cfg.Capture.Backend)
	}
}

func (a *App) buildFetcher() (crawler.Fetcher, error) {
	plain := collyfetcher.New(collyfetcher.Config{
		UserAgent:    a.cfg.Fetch.UserAgent,
		Timeout:      a.cfg.Fetch.Timeout,
		MaxBodyBytes: a.cfg.Fetch.MaxBodyBytes,
	})
	if !a.cfg.Fetch.Render && !a.cfg.Fetch.RenderAuto {
		return plain, nil
	}
	browser, err := headlessfetcher.New(headlessfetcher.Config{
		MaxParallel:       a.cfg.Scan.Workers,
		UserAgent:         a.cfg.Fetch.UserAgent,
		NavigationTimeout: a.cfg.Fetch.RenderTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init headless fetcher: %w", err)
	}
	a.closers = append(a.closers, closer{name: "browser", fn: func(context.Context) error {
		browser.Close()
		return nil
	}})
	if !a.cfg.Fetch.Render {
		a.logger.Info("rendering client-side shells in headless chrome")
		return headlessfetcher.NewPromotingRouter(browser, plain, detector.NewHeuristic(0)), nil
	}
	a.logger.Info("rendering pages in headless chrome")
	return headlessfetcher.NewRouter(browser, plain), nil
}

func (a *App) buildResultSinks(ctx context.Context, pub crawler.Publisher) ([]dispatcher.Sink, error) {
	var out []dispatcher.Sink
	if path := a.cfg.Scan.MarkdownPath; path != "" {
		out = append(out, report.NewMarkdownWriter(path))
	}
	if path := a.cfg.Results.SQLitePath; path != "" {
		store, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("init sqlite results: %w", err)
		}
		a.closers = append(a.closers, closer{name: "sqlite", fn: func(context.Context) error { return store.Close() }})
		out = append(out, store)
	}
	if dsn := a.cfg.Results.PostgresDSN; dsn != "" {
		store, err := postgres.New(ctx, postgres.Config{DSN: dsn, Table: a.cfg.Results.PostgresTable})
		if err != nil {
			return nil, fmt.Errorf("init postgres results: %w", err)
		}
		a.closers = append(a.closers, closer{name: "postgres", fn: func(context.Context) error { return store.Close() }})
		out = append(out, store)
	}
	if topic := a.cfg.Notify.PubSubTopic; topic != "" {
		if pub == nil {
			client, err := pubsubpublisher.Dial(ctx, a.cfg.Notify.PubSubProject)
			if err != nil {
				return nil, fmt.Errorf("init pubsub: %w", err)
			}
			a.closers = append(a.closers, closer{name: "pubsub", fn: func(context.Context) error { return client.Close() }})
			pub = client
		}
		notifier, err := publisher.NewNotifier(pub, topic, a.logger)
		if err != nil {
			return nil, err
		}
		out = append(out, notifier)
	}
	return out, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Dispatcher returns the run orchestrator.
func (a *App) Dispatcher() *dispatcher.Dispatcher { return a.dispatcher }

// CaptureStore returns the capture backend.
func (a *App) CaptureStore() crawler.CaptureStore { return a.store }

// Names lists the loaded signature names in table order. It is empty for the
// wappalyzer source, whose database is not enumerated.
func (a *App) Names() []string {
	return append([]string(nil), a.names...)
}

// Scan runs one scan over urls, serving the status API for its duration when
// server.addr is set.
func (a *App) Scan(ctx context.Context, urls []string) (dispatcher.Outcome, error) {
	if a.server != nil {
		serveCtx, stop := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- a.server.Serve(serveCtx, a.cfg.Server.Addr) }()
		defer func() {
			stop()
			if err := <-done; err != nil {
				a.logger.Warn("status server stopped with error", zap.Error(err))
			}
		}()
	}
	return a.dispatcher.Run(ctx, urls)
}

// Close flushes progress events and releases every service in reverse order
// of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
