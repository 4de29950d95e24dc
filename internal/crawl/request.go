// Package crawl holds the immutable view of one inbound crawl request.
package crawl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	// HeaderPublisher carries the publisher address a caller claims to be crawling.
	HeaderPublisher = "X-Publisher-Address"
	// HeaderCrawler carries the crawler's own address.
	HeaderCrawler = "X-Crawler-Address"
)

// ErrBodyTooLarge is returned by FromHTTP when the body exceeds the limit.
var ErrBodyTooLarge = errors.New("request body too large")

// Request is a snapshot of an inbound call. It is built once per request and
// never mutated; accessors hand out copies.
type Request struct {
	url       url.URL
	method    string
	header    http.Header
	body      []byte
	publisher string
	requester string
}

// New builds a Request from explicit parts.
func New(method, rawURL string, header http.Header, body []byte) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if method == "" {
		method = http.MethodGet
	}
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	req := &Request{
		url:    *u,
		method: method,
		header: h,
		body:   bytes.Clone(body),
	}
	req.publisher = strings.TrimSpace(h.Get(HeaderPublisher))
	req.requester = strings.TrimSpace(h.Get(HeaderCrawler))
	if req.requester == "" {
		req.requester = h.Get("User-Agent")
	}
	return req, nil
}

// FromHTTP snapshots r. When baseURL is set it replaces the scheme and host
// seen on the wire so resource identifiers stay stable behind proxies.
// A body longer than maxBody bytes is rejected with ErrBodyTooLarge, never
// truncated.
func FromHTTP(r *http.Request, baseURL string, maxBody int64) (*Request, error) {
	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		reader := io.Reader(r.Body)
		if maxBody > 0 {
			reader = io.LimitReader(r.Body, maxBody+1)
		}
		b, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		if maxBody > 0 && int64(len(b)) > maxBody {
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxBody)
		}
		body = b
	}
	return New(r.Method, absoluteURL(r, baseURL), r.Header, body)
}

func absoluteURL(r *http.Request, baseURL string) string {
	if baseURL != "" {
		return strings.TrimRight(baseURL, "/") + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(p, ",")[0]))
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

// URL returns the absolute target URL.
func (r *Request) URL() string { return r.url.String() }

// Path returns the target path.
func (r *Request) Path() string {
	if r.url.Path == "" {
		return "/"
	}
	return r.url.Path
}

// RequestURI returns the path and query of the target.
func (r *Request) RequestURI() string { return r.url.RequestURI() }

func (r *Request) Method() string { return r.method }

// Header returns a copy of the inbound headers.
func (r *Request) Header() http.Header { return r.header.Clone() }

// HeaderValue returns the first value of the named header.
func (r *Request) HeaderValue(name string) string { return r.header.Get(name) }

// Body returns a copy of the buffered body, or nil.
func (r *Request) Body() []byte { return bytes.Clone(r.body) }

// Publisher is the publisher identity claimed by the caller, if any.
func (r *Request) Publisher() string { return r.publisher }

// Requester is the claimed crawler identity, falling back to the user agent.
func (r *Request) Requester() string { return r.requester }

func (r *Request) UserAgent() string { return r.header.Get("User-Agent") }
