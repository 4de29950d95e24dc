// Package fetcher retrieves gated content from the publisher's upstream.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/crawl"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/failure"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/metrics"
	"github.com/razvanmacovei/x402-crawl-gateway/internal/proof"
)

const (
	DefaultUserAgent    = "x402-crawl-gateway/1.0"
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 10 << 20
)

// hopHeaders are meaningful for a single connection only.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Options configures a Fetcher.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	Client       *http.Client
}

// Response is a fully buffered upstream response.
type Response struct {
	Status      int
	ContentType string
	Header      http.Header
	Body        []byte
}

// Fetcher performs upstream retrievals for authorized requests.
type Fetcher struct {
	opts Options
}

func New(opts Options) *Fetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Client == nil {
		opts.Client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &Fetcher{opts: opts}
}

// Fetch retrieves req from backend. Cancelling ctx aborts the fetch.
// Non-2xx upstream answers are failure.UpstreamError; transport problems are
// failure.UpstreamUnreachable.
func (f *Fetcher) Fetch(ctx context.Context, req *crawl.Request, backend string) (*Response, error) {
	if backend == "" {
		return nil, failure.New(failure.UpstreamUnreachable, "no backend for %s", req.Path())
	}
	target, err := url.Parse(strings.TrimRight(backend, "/") + req.RequestURI())
	if err != nil {
		return nil, failure.Wrap(failure.UpstreamUnreachable, err, "backend url %q", backend)
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	var body io.Reader
	if b := req.Body(); len(b) > 0 {
		body = bytes.NewReader(b)
	}
	out, err := http.NewRequestWithContext(ctx, req.Method(), target.String(), body)
	if err != nil {
		return nil, failure.Wrap(failure.InternalError, err, "build upstream request")
	}
	out.Header = f.forwardHeaders(req)

	start := time.Now()
	resp, err := f.opts.Client.Do(out)
	metrics.UpstreamFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, failure.Wrap(failure.UpstreamUnreachable, err, "%s %s", req.Method(), target.Redacted())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, failure.New(failure.UpstreamError, "upstream returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, failure.Wrap(failure.UpstreamUnreachable, err, "read upstream body")
	}
	if int64(len(data)) > f.opts.MaxBodyBytes {
		return nil, failure.New(failure.UpstreamError, "upstream body exceeds %d bytes", f.opts.MaxBodyBytes)
	}

	header := resp.Header.Clone()
	removeHopHeaders(header)
	return &Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      header,
		Body:        data,
	}, nil
}

// forwardHeaders copies the caller's headers minus proofs and hop-by-hop
// headers, and stamps the gateway's user agent.
func (f *Fetcher) forwardHeaders(req *crawl.Request) http.Header {
	h := req.Header()
	for _, name := range proof.Headers {
		h.Del(name)
	}
	removeHopHeaders(h)
	h.Del("Host")
	h.Del("Content-Length")
	h.Set("User-Agent", f.opts.UserAgent)
	if req.Requester() != "" {
		h.Set("X-Crawler", req.Requester())
	}
	return h
}

func removeHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = textproto.TrimString(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// String implements fmt.Stringer for logs.
func (r *Response) String() string {
	return fmt.Sprintf("%d %s (%d bytes)", r.Status, r.ContentType, len(r.Body))
}
