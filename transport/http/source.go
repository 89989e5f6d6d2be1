// Package http provides a transport that fetches keys with HTTP GET.
package http

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"

	"github.com/meigma/imgload/transport"
)

// DefaultUserAgent is sent when no User-Agent header is configured.
const DefaultUserAgent = "imgload/1.0"

// Transport fetches http and https keys.
type Transport struct {
	client      *nethttp.Client
	headers     nethttp.Header
	userAgent   string
	compression bool
	zstd        *decompressPool
}

var _ transport.SchemeHandler = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(t *Transport) {
		t.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) Option {
	return func(t *Transport) {
		if headers == nil {
			return
		}
		t.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(t *Transport) {
		if t.headers == nil {
			t.headers = make(nethttp.Header)
		}
		t.headers.Set(key, value)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(t *Transport) {
		t.userAgent = ua
	}
}

// WithCompression controls whether the transport negotiates zstd and gzip
// content encoding. When a response is encoded its decoded length is not
// known up front, so the Response reports an unknown ContentLength.
// Enabled by default.
func WithCompression(enabled bool) Option {
	return func(t *Transport) {
		t.compression = enabled
	}
}

// New creates an HTTP transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		client:      nethttp.DefaultClient,
		userAgent:   DefaultUserAgent,
		compression: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.client == nil {
		t.client = nethttp.DefaultClient
	}
	if t.compression {
		t.zstd = newDecompressPool()
	}
	return t
}

// Schemes implements transport.SchemeHandler.
func (t *Transport) Schemes() []string {
	return []string{"http", "https"}
}

// Open issues a GET for key and returns the (decoded) body.
func (t *Transport) Open(ctx context.Context, key string) (*transport.Response, error) {
	u, err := url.Parse(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrMalformedKey, err)
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", transport.ErrMalformedKey, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", transport.ErrMalformedKey, key)
	}

	req, err := t.newRequest(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrMalformedKey, err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		return nil, &transport.StatusError{Key: key, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, encoded, err := t.decodeBody(resp)
	if err != nil {
		_ = resp.Body.Close()
		return nil, err
	}

	length := resp.ContentLength
	if encoded {
		length = -1
	}

	return &transport.Response{
		Body:          body,
		ContentLength: length,
		ContentType:   resp.Header.Get("Content-Type"),
	}, nil
}

func (t *Transport) newRequest(ctx context.Context, rawURL string) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range t.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("User-Agent") == "" && t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "image/*")
	}
	if req.Header.Get("Accept-Encoding") == "" {
		if t.compression {
			req.Header.Set("Accept-Encoding", "zstd, gzip")
		} else {
			req.Header.Set("Accept-Encoding", "identity")
		}
	}
	return req, nil
}
