package collyfetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/techscan/internal/crawler"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "scan-agent", Timeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	collector := f.buildCollector(ctx, crawler.FetchRequest{URL: "https://example.com"}, time.Unix(0, 0), &crawler.FetchResponse{}, new(error))

	assert.Equal(t, "scan-agent", collector.UserAgent)
	require.NotNil(t, collector.Context)
	_, ok := collector.Context.Value(rawBodyKey{}).(*rawBody)
	assert.True(t, ok)
	cancel()
	assert.ErrorIs(t, collector.Context.Err(), context.Canceled)
	assert.True(t, collector.IgnoreRobotsTxt)
	assert.True(t, collector.AllowURLRevisit)
	assert.True(t, collector.ParseHTTPErrorResponse)
}

func TestConfigTimeoutDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, defaultTimeout, Config{}.timeout())
	assert.Equal(t, time.Second, Config{Timeout: time.Second}.timeout())
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := crawler.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	var result crawler.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Now(), &rawBody{}, &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusNotFound,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	assert.Equal(t, http.StatusNotFound, result.StatusCode)
	assert.Equal(t, "body", string(result.Body))
	assert.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	collyReq := &colly.Request{Headers: &http.Header{}}
	copyHeaders(nil, collyReq)
	assert.Empty(t, *collyReq.Headers)
}

func TestFetchServesBodyAndErrorStatuses(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("not here"))
		default:
			w.Header().Set("X-Agent", r.UserAgent())
			_, _ = w.Write([]byte("<html>ok</html>"))
		}
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "scan-agent", Timeout: 2 * time.Second})
	ctx := context.Background()

	resp, err := f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/page"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>ok</html>", string(resp.Body))
	assert.Equal(t, "scan-agent", resp.Headers.Get("X-Agent"))

	resp, err = f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/missing"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not here", string(resp.Body))
}

func TestFetchSameURLTwice(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("again"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 2 * time.Second})
	for range 2 {
		resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/a.js"})
		require.NoError(t, err)
		assert.Equal(t, "again", string(resp.Body))
	}
}

func TestFetchTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := New(Config{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: addr})
	require.Error(t, err)
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	f := New(Config{Timeout: 5 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	done, cancelDone := context.WithCancel(context.Background())
	cancelDone()
	_, err = f.Fetch(done, crawler.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.Canceled)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

func TestFetchBodyCap(t *testing.T) {
	t.Parallel()

	const served = 11 << 20
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		size := served
		if r.URL.Path == "/exact.js" {
			size = 1024
		}
		_, _ = w.Write(bytes.Repeat([]byte("a"), size))
	}))
	t.Cleanup(srv.Close)

	tests := []struct {
		name          string
		maxBody       int
		path          string
		wantLen       int
		wantTruncated bool
	}{
		{name: "unlimited", maxBody: 0, path: "/bundle.js", wantLen: served},
		{name: "over cap", maxBody: 1024, path: "/bundle.js", wantLen: 1024, wantTruncated: true},
		{name: "exactly at cap", maxBody: 1024, path: "/exact.js", wantLen: 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := New(Config{Timeout: 10 * time.Second, MaxBodyBytes: tt.maxBody})
			resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + tt.path, Kind: crawler.KindScript})
			require.NoError(t, err)
			assert.Len(t, resp.Body, tt.wantLen)
			assert.Equal(t, tt.wantTruncated, resp.Truncated)
		})
	}
}

func TestFetchKeepsRawBytes(t *testing.T) {
	t.Parallel()

	latin1 := []byte("a::after{content:\"\xe9\"}")
	plain := []byte("console.log('gz');")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/latin1.css":
			w.Header().Set("Content-Type", "text/css; charset=iso-8859-1")
			_, _ = w.Write(latin1)
		case "/gz.js":
			w.Header().Set("Content-Type", "application/javascript")
			w.Header().Set("Content-Encoding", "gzip")
			zw := gzip.NewWriter(w)
			_, _ = zw.Write(plain)
			_ = zw.Close()
		}
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 2 * time.Second})

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/latin1.css", Kind: crawler.KindStylesheet})
	require.NoError(t, err)
	assert.Equal(t, latin1, resp.Body)

	resp, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/gz.js", Kind: crawler.KindScript})
	require.NoError(t, err)
	assert.Equal(t, plain, resp.Body)
}

func TestFetchCancelAbortsRequest(t *testing.T) {
	t.Parallel()

	aborted := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			close(aborted)
		case <-time.After(10 * time.Second):
			_, _ = w.Write([]byte("late"))
		}
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 30 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-aborted:
	case <-time.After(5 * time.Second):
		t.Fatal("server request still running after cancellation")
	}
}

func TestRawBodyTransportPassThrough(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("plain"))
	}))
	t.Cleanup(srv.Close)

	client := &http.Client{Transport: &rawBodyTransport{base: http.DefaultTransport}}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "plain", string(body))

	_, err = (&rawBodyTransport{base: http.DefaultTransport}).RoundTrip(nil)
	require.Error(t, err)
}
