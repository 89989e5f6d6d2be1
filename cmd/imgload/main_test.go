package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	t.Parallel()

	cfg, err := parseFlags("imgload", []string{
		"--workers", "2",
		"--capacity=8",
		"--max-bytes", "1MB",
		"--http-bps", "64KB",
		"-v",
		"https://example.com/a.png", "oci://ghcr.io/org/repo:v1",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.workers)
	assert.Equal(t, 8, cfg.capacity)
	assert.Equal(t, int64(1_000_000), cfg.maxBytes)
	assert.Equal(t, int64(64_000), cfg.httpBPS)
	assert.True(t, cfg.verbose)
	assert.Equal(t, []string{"https://example.com/a.png", "oci://ghcr.io/org/repo:v1"}, cfg.keys)
}

func TestParseFlagsErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{"no keys", []string{"--workers", "2"}},
		{"bad max bytes", []string{"--max-bytes", "lots", "k"}},
		{"zero bps", []string{"--http-bps", "0", "k"}},
		{"unknown flag", []string{"--nope", "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseFlags("imgload", tt.args)
			require.Error(t, err)
		})
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	var png1 bytes.Buffer
	require.NoError(t, png.Encode(&png1, image.NewRGBA(image.Rect(0, 0, 3, 2))))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ok.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png1.Bytes())
	}))
	t.Cleanup(srv.Close)

	var stdout, stderr bytes.Buffer
	code := run([]string{"--metrics", srv.URL + "/ok.png", srv.URL + "/missing.png"}, &stdout, &stderr)

	assert.Equal(t, 1, code, "one key failed")
	out := stdout.String()
	assert.Contains(t, out, "/ok.png")
	assert.Contains(t, out, "3x2")
	assert.Contains(t, out, "png")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, `imgload_fetch_failures_total{kind="connection_failure"} 1`)
	assert.Contains(t, stderr.String(), "download failed")
}

func TestSlowNetworkPacesBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 2000))
	}))
	t.Cleanup(srv.Close)

	client := newHTTPClient(config{httpBPS: 10_000, httpLatency: 10 * time.Millisecond})
	start := time.Now()
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 2000, buf.Len())
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestSlowNetworkStopsOnCancel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 4096))
	}))
	t.Cleanup(srv.Close)

	// 4 KiB at 100 B/s would take 40 seconds.
	client := newHTTPClient(config{httpBPS: 100})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	start := time.Now()
	_, err = io.Copy(io.Discard, resp.Body)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNewHTTPClientWithoutThrottle(t *testing.T) {
	t.Parallel()

	client := newHTTPClient(config{})
	_, slow := client.Transport.(*slowNetwork)
	assert.False(t, slow)
}
