package main

import (
	"context"
	"io"
	nethttp "net/http"
	"time"
)

// newHTTPClient returns a client that optionally simulates a slow network,
// which makes progress reporting visible on fast links.
func newHTTPClient(cfg config) *nethttp.Client {
	base := nethttp.DefaultTransport
	if t, ok := base.(*nethttp.Transport); ok {
		base = t.Clone()
	}
	if cfg.httpLatency <= 0 && cfg.httpBPS <= 0 {
		return &nethttp.Client{Transport: base}
	}
	return &nethttp.Client{Transport: &slowNetwork{
		base:    base,
		latency: cfg.httpLatency,
		bps:     cfg.httpBPS,
	}}
}

// slowNetwork delays each request by latency and paces response bodies to
// bps bytes per second. Both waits end early when the request is cancelled,
// so superseded downloads stop promptly.
type slowNetwork struct {
	base    nethttp.RoundTripper
	latency time.Duration
	bps     int64
}

func (n *slowNetwork) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	ctx := req.Context()
	if err := pause(ctx, n.latency); err != nil {
		return nil, err
	}
	resp, err := n.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if n.bps > 0 && resp.Body != nil {
		resp.Body = &pacedBody{
			ctx:   ctx,
			body:  resp.Body,
			bps:   n.bps,
			start: time.Now(),
		}
	}
	return resp, nil
}

// pacedBody releases bytes no faster than bps.
type pacedBody struct {
	ctx   context.Context
	body  io.ReadCloser
	bps   int64
	start time.Time
	read  int64
}

func (b *pacedBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if n == 0 {
		return n, err
	}
	b.read += int64(n)
	due := b.start.Add(time.Duration(b.read) * time.Second / time.Duration(b.bps))
	if perr := pause(b.ctx, time.Until(due)); perr != nil {
		return n, perr
	}
	return n, err
}

func (b *pacedBody) Close() error {
	return b.body.Close()
}

// pause sleeps for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
