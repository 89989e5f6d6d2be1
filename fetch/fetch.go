// Package fetch performs single image retrievals: open a key through a
// transport, stream the bytes, and decode them.
//
// A fetch makes exactly one attempt. Every failure is reported as an *Error
// carrying a [Kind]; callers that want retries call again.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/imgload/decode"
	"github.com/meigma/imgload/transport"
)

// DefaultBufferSize is the read size used while streaming.
const DefaultBufferSize = 32 << 10

// maxPrealloc caps how much of a reported content length is allocated up
// front. Sources may misreport their length.
const maxPrealloc = 8 << 20

// Fetcher retrieves and decodes images.
//
// A Fetcher is safe for concurrent use if its transport and decoder are.
type Fetcher struct {
	transport transport.Transport
	decoder   decode.Decoder
	bufSize   int
	maxBytes  int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBufferSize sets the size of each read. Values <= 0 keep the default.
func WithBufferSize(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.bufSize = n
		}
	}
}

// WithMaxBytes fails a fetch whose body exceeds n bytes. Values <= 0 disable
// the limit.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		f.maxBytes = n
	}
}

// New creates a Fetcher reading through t and decoding with d.
func New(t transport.Transport, d decode.Decoder, opts ...Option) *Fetcher {
	f := &Fetcher{
		transport: t,
		decoder:   d,
		bufSize:   DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ProgressFunc receives the running byte count and the expected total.
// total is <= 0 when the source did not report a length.
type ProgressFunc func(read, total int64)

type streamConfig struct {
	progress ProgressFunc
	stop     func() bool
}

// StreamOption configures a single Stream call.
type StreamOption func(*streamConfig)

// WithProgress is called after every successful read.
func WithProgress(fn ProgressFunc) StreamOption {
	return func(c *streamConfig) {
		c.progress = fn
	}
}

// WithStop is polled before every read. Returning true abandons the fetch.
func WithStop(fn func() bool) StreamOption {
	return func(c *streamConfig) {
		c.stop = fn
	}
}

// Fetch retrieves and decodes key.
func (f *Fetcher) Fetch(ctx context.Context, key string) (*decode.Image, error) {
	return f.Stream(ctx, key)
}

// Stream retrieves and decodes key, reporting progress and polling for
// cancellation between reads. Partial data is discarded when the fetch is
// abandoned.
func (f *Fetcher) Stream(ctx context.Context, key string, opts ...StreamOption) (*decode.Image, error) {
	var cfg streamConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	stopped := func() bool {
		return ctx.Err() != nil || (cfg.stop != nil && cfg.stop())
	}
	if stopped() {
		return nil, &Error{Kind: Cancelled, Key: key, Err: context.Cause(ctx)}
	}

	resp, err := f.transport.Open(ctx, key)
	if err != nil {
		return nil, &Error{Kind: classifyOpen(ctx, err), Key: key, Err: err}
	}
	defer resp.Body.Close()

	data, err := f.read(ctx, key, resp, &cfg, stopped)
	if err != nil {
		return nil, err
	}

	img, err := f.decoder.Decode(data)
	if err != nil {
		return nil, &Error{Kind: DecodeFailure, Key: key, Err: err}
	}
	if img == nil {
		return nil, &Error{Kind: DecodeFailure, Key: key, Err: decode.ErrUnsupported}
	}
	if img.Digest == "" {
		img.Digest = digest.FromBytes(data)
	}
	if img.Bytes == 0 {
		img.Bytes = len(data)
	}
	return img, nil
}

func (f *Fetcher) read(ctx context.Context, key string, resp *transport.Response, cfg *streamConfig, stopped func() bool) ([]byte, error) {
	total := resp.ContentLength
	if f.maxBytes > 0 && total > f.maxBytes {
		return nil, &Error{Kind: StreamError, Key: key, Err: fmt.Errorf("content length %d exceeds limit %d", total, f.maxBytes)}
	}

	var buf bytes.Buffer
	if n := preallocSize(total, f.maxBytes); n > 0 {
		buf.Grow(n)
	}
	chunk := make([]byte, f.bufSize)
	var read int64

	for {
		if stopped() {
			return nil, &Error{Kind: Cancelled, Key: key, Err: context.Cause(ctx)}
		}

		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			read += int64(n)
			if f.maxBytes > 0 && read > f.maxBytes {
				return nil, &Error{Kind: StreamError, Key: key, Err: fmt.Errorf("body exceeds limit %d", f.maxBytes)}
			}
			buf.Write(chunk[:n])
			if cfg.progress != nil {
				cfg.progress(read, total)
			}
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if stopped() {
				return nil, &Error{Kind: Cancelled, Key: key, Err: rerr}
			}
			return nil, &Error{Kind: StreamError, Key: key, Err: rerr}
		}
	}

	if stopped() {
		return nil, &Error{Kind: Cancelled, Key: key, Err: context.Cause(ctx)}
	}
	return buf.Bytes(), nil
}

// preallocSize returns how many bytes to reserve for a body of the reported
// length.
func preallocSize(total, limit int64) int {
	if total <= 0 {
		return 0
	}
	n := min(total, maxPrealloc)
	if limit > 0 {
		n = min(n, limit)
	}
	return int(n)
}
