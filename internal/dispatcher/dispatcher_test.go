package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/techscan/internal/capture"
	"github.com/JakeFAU/techscan/internal/config"
	"github.com/JakeFAU/techscan/internal/crawler"
	collyfetcher "github.com/JakeFAU/techscan/internal/fetcher/colly"
	"github.com/JakeFAU/techscan/internal/signature"
	"github.com/JakeFAU/techscan/internal/storage/memory"
	"github.com/JakeFAU/techscan/internal/worker"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fixedIDs struct{ id uuid.UUID }

func (g fixedIDs) NewRunID() (uuid.UUID, error) { return g.id, nil }

type failingIDs struct{}

func (failingIDs) NewRunID() (uuid.UUID, error) { return uuid.Nil, errors.New("entropy") }

// recordingSink keeps every write.
type recordingSink struct {
	name string
	err  error

	mu        sync.Mutex
	writes    int
	summaries []crawler.RunSummary
	results   crawler.AggregateResult
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(_ context.Context, summary crawler.RunSummary, results crawler.AggregateResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.summaries = append(s.summaries, summary)
	s.results = append(crawler.AggregateResult(nil), results...)
	return s.err
}

func (s *recordingSink) Path() string { return "result.json" }

// stubCapturer tags each URL with "Tech" and fails the listed URLs.
type stubCapturer struct {
	fail  map[string]bool
	block chan struct{}
}

func (c *stubCapturer) Capture(ctx context.Context, task crawler.PageTask) (crawler.PageResult, error) {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return crawler.PageResult{}, fmt.Errorf("%w: %w", crawler.ErrPageFetch, ctx.Err())
		}
	}
	if c.fail[task.URL] {
		return crawler.PageResult{}, fmt.Errorf("%w: refused", crawler.ErrPageFetch)
	}
	return crawler.PageResult{URL: task.URL, Technologies: []string{"Tech"}}, nil
}

func newTestDispatcher(t *testing.T, workers int, capt worker.PageCapturer, results *recordingSink, extra ...Sink) *Dispatcher {
	t.Helper()
	d, err := New(Config{
		Workers:     workers,
		MaxWorkers:  16,
		NewCapturer: func(int) worker.PageCapturer { return capt },
		Results:     results,
		Extra:       extra,
		Clock:       fixedClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		IDs:         fixedIDs{id: uuid.MustParse("0190b7a4-9c3e-7a2b-8c4d-5e6f7a8b9c0d")},
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	return d
}

func urlList(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://site%02d.test/", i)
	}
	return urls
}

func resultURLs(results crawler.AggregateResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.URL)
	}
	sort.Strings(out)
	return out
}

func TestNewValidatesWorkers(t *testing.T) {
	t.Parallel()

	base := Config{
		NewCapturer: func(int) worker.PageCapturer { return &stubCapturer{} },
		Results:     &recordingSink{name: "json"},
		Clock:       fixedClock{},
		IDs:         fixedIDs{},
	}

	cfg := base
	cfg.Workers, cfg.MaxWorkers = 0, 4
	_, err := New(cfg)
	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, config.ErrInvalidWorkers)

	cfg.Workers = 5
	_, err = New(cfg)
	require.ErrorIs(t, err, config.ErrTooManyWorkers)

	cfg.Workers = 4
	_, err = New(cfg)
	require.NoError(t, err)

	cfg.Results = nil
	_, err = New(cfg)
	require.Error(t, err)
}

func TestRunAggregatesEveryChunk(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{1, 3, 7, 10} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			t.Parallel()

			urls := urlList(7)
			sink := &recordingSink{name: "json"}
			d := newTestDispatcher(t, workers, &stubCapturer{}, sink)

			outcome, err := d.Run(context.Background(), urls)
			require.NoError(t, err)
			assert.Len(t, outcome.Results, len(urls))
			assert.Equal(t, resultURLs(crawler.AggregateResult(toResults(urls))), resultURLs(outcome.Results))

			assert.Equal(t, 1, sink.writes, "results persisted exactly once")
			assert.Equal(t, outcome.Results, sink.results)
			assert.Equal(t, min(workers, len(urls)), outcome.Summary.Workers)
			assert.Equal(t, 7, outcome.Summary.Captured)
			assert.Equal(t, "result.json", outcome.Summary.ResultPath)
			assert.Equal(t, "0190b7a4-9c3e-7a2b-8c4d-5e6f7a8b9c0d", outcome.Summary.RunID)

			status := d.Status()
			assert.False(t, status.Running)
			assert.Equal(t, status.Dispatched, status.Completed)
			assert.Equal(t, 7, status.Results)
		})
	}
}

func toResults(urls []string) []crawler.PageResult {
	out := make([]crawler.PageResult, 0, len(urls))
	for _, u := range urls {
		out = append(out, crawler.PageResult{URL: u})
	}
	return out
}

func TestRunAlwaysFailingPage(t *testing.T) {
	t.Parallel()

	urls := urlList(5)
	capt := &stubCapturer{fail: map[string]bool{urls[2]: true}}
	sink := &recordingSink{name: "json"}
	d := newTestDispatcher(t, 2, capt, sink)

	outcome, err := d.Run(context.Background(), urls)
	require.NoError(t, err)
	assert.Len(t, outcome.Results, len(urls)-1)
	assert.NotContains(t, resultURLs(outcome.Results), urls[2])
	assert.Equal(t, 1, outcome.Summary.Failed)
}

type panickingCapturer struct{}

func (panickingCapturer) Capture(context.Context, crawler.PageTask) (crawler.PageResult, error) {
	panic("capture exploded")
}

func TestRunWorkerPanicLosesOnlyItsChunk(t *testing.T) {
	t.Parallel()

	urls := urlList(6)
	sink := &recordingSink{name: "json"}
	d, err := New(Config{
		Workers:    3,
		MaxWorkers: 3,
		NewCapturer: func(index int) worker.PageCapturer {
			if index == 1 {
				return panickingCapturer{}
			}
			return &stubCapturer{}
		},
		Results: sink,
		Clock:   fixedClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		IDs:     fixedIDs{id: uuid.MustParse("0190b7a4-9c3e-7a2b-8c4d-5e6f7a8b9c0d")},
	})
	require.NoError(t, err)

	outcome, err := d.Run(context.Background(), urls)
	require.NoError(t, err)
	assert.Equal(t, []string{urls[0], urls[1], urls[4], urls[5]}, resultURLs(outcome.Results))
	assert.Equal(t, 2, outcome.Summary.Failed)
	assert.Equal(t, 3, d.Status().Completed)
}

func TestRunEmptyInputWritesEmptyResult(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{name: "json"}
	d := newTestDispatcher(t, 2, &stubCapturer{}, sink)

	outcome, err := d.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, outcome.Results)
	assert.Equal(t, 1, sink.writes)
	assert.Zero(t, outcome.Summary.Workers)
}

func TestRunCanceledPersistsNothing(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	defer close(block)
	sink := &recordingSink{name: "json"}
	d := newTestDispatcher(t, 2, &stubCapturer{block: block}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		assert.Eventually(t, func() bool { return d.Status().Running }, time.Second, 5*time.Millisecond)
		cancel()
	}()

	_, err := d.Run(ctx, urlList(4))
	require.ErrorIs(t, err, ErrIncomplete)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sink.writes)
	assert.False(t, d.Status().Running)
	assert.NotEmpty(t, d.Status().Error)
}

func TestRunPrimarySinkFailure(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{name: "json", err: errors.New("disk full")}
	extra := &recordingSink{name: "sqlite"}
	d := newTestDispatcher(t, 1, &stubCapturer{}, sink, extra)

	_, err := d.Run(context.Background(), urlList(2))
	require.ErrorContains(t, err, "json sink: disk full")
	assert.Zero(t, extra.writes, "extra sinks only run after the results file")
}

func TestRunExtraSinkFailureIsReported(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{name: "json"}
	bad := &recordingSink{name: "postgres", err: errors.New("conn refused")}
	good := &recordingSink{name: "pubsub"}
	d := newTestDispatcher(t, 1, &stubCapturer{}, sink, bad, good)

	outcome, err := d.Run(context.Background(), urlList(2))
	require.ErrorContains(t, err, "postgres sink: conn refused")
	assert.Len(t, outcome.Results, 2)
	assert.Equal(t, 1, sink.writes)
	assert.Equal(t, 1, good.writes)
}

func TestRunIDFailure(t *testing.T) {
	t.Parallel()

	d, err := New(Config{
		Workers:     1,
		NewCapturer: func(int) worker.PageCapturer { return &stubCapturer{} },
		Results:     &recordingSink{name: "json"},
		Clock:       fixedClock{},
		IDs:         failingIDs{},
	})
	require.NoError(t, err)
	_, err = d.Run(context.Background(), urlList(1))
	require.ErrorContains(t, err, "entropy")
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/react", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><script src="/static/bundle.js"></script></head><body>hi</body></html>`)
	})
	mux.HandleFunc("/static/bundle.js", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `/* React v18 */`)
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>nothing here</body></html>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	table, err := signature.NewTable(signature.MustCompile("React", `(?i)react`))
	require.NoError(t, err)
	store := memory.NewStore()
	capt, err := capture.New(capture.Config{
		Fetcher:    collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second}),
		Store:      store,
		Classifier: table,
	})
	require.NoError(t, err)

	sink := &recordingSink{name: "json"}
	d, err := New(Config{
		Workers:     2,
		MaxWorkers:  2,
		NewCapturer: func(i int) worker.PageCapturer { return capt.WithWorker(i) },
		Results:     sink,
		Clock:       fixedClock{t: time.Now()},
		IDs:         fixedIDs{id: uuid.New()},
	})
	require.NoError(t, err)

	outcome, err := d.Run(context.Background(), []string{server.URL + "/react", server.URL + "/plain"})
	require.NoError(t, err)
	require.Len(t, outcome.Results, 2)

	byURL := map[string][]string{}
	for _, r := range outcome.Results {
		byURL[r.URL] = r.Technologies
	}
	assert.Equal(t, []string{"React"}, byURL[server.URL+"/react"])
	assert.Equal(t, []string{}, byURL[server.URL+"/plain"])
	assert.Len(t, store.Names(), 2)
	_, ok := store.Get(crawler.CaptureObjectName(server.URL + "/react"))
	assert.True(t, ok)
}
