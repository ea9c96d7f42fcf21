package collyfetcher

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type rawBodyKey struct{}

// rawBody holds the bytes read from the last response of one fetch, before
// colly converts their charset.
type rawBody struct {
	buf  bytes.Buffer
	seen bool
}

// rawBodyTransport tees response bodies into the rawBody carried by the
// request context. Requests without one pass through untouched.
type rawBodyTransport struct {
	base http.RoundTripper
}

func (t *rawBodyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("raw body transport received nil request")
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("raw body transport base roundtrip: %w", err)
	}
	raw, ok := req.Context().Value(rawBodyKey{}).(*rawBody)
	if !ok || resp.Body == nil {
		return resp, nil
	}
	if err := decodeGzip(resp); err != nil {
		return nil, err
	}
	// Redirect hops reach here too; the final response wins.
	raw.buf.Reset()
	raw.seen = true
	resp.Body = &teeBody{Reader: io.TeeReader(resp.Body, &raw.buf), Closer: resp.Body}
	return resp, nil
}

// decodeGzip undoes a gzip Content-Encoding the transport left in place, so
// the tee sees the same bytes colly would have decoded.
func decodeGzip(resp *http.Response) error {
	if resp.Uncompressed || !strings.Contains(strings.ToLower(resp.Header.Get("Content-Encoding")), "gzip") {
		return nil
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode gzip body: %w", err)
	}
	resp.Body = &teeBody{Reader: zr, Closer: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

type teeBody struct {
	io.Reader
	io.Closer
}
