package imgload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meigma/imgload/decode"
	"github.com/meigma/imgload/transport"
)

// fakeSource serves each key's own bytes. Keys can be gated so Open blocks
// until released, and keys prefixed with "fail:" fail to connect.
type fakeSource struct {
	mu     sync.Mutex
	opens  map[string]int
	gates  map[string]chan struct{}
	length func(body []byte) int64
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		opens: make(map[string]int),
		gates: make(map[string]chan struct{}),
	}
}

func (s *fakeSource) gate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gates[key] = make(chan struct{})
}

func (s *fakeSource) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.gates[key])
}

func (s *fakeSource) openCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens[key]
}

func (s *fakeSource) Open(ctx context.Context, key string) (*transport.Response, error) {
	s.mu.Lock()
	s.opens[key]++
	g := s.gates[key]
	s.mu.Unlock()

	if g != nil {
		select {
		case <-g:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if strings.HasPrefix(key, "fail:") {
		return nil, errors.New("connection refused")
	}

	body := []byte(key)
	length := int64(len(body))
	if s.length != nil {
		length = s.length(body)
	}
	return &transport.Response{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: length,
	}, nil
}

// formatDecoder "decodes" bytes into an image whose Format is the bytes.
var formatDecoder = decode.DecoderFunc(func(data []byte) (*decode.Image, error) {
	return &decode.Image{Format: string(data)}, nil
})

func newTestDownloader(t *testing.T, src *fakeSource, opts ...Option) (*Downloader, *Loop) {
	t.Helper()
	loop := NewLoop()
	opts = append([]Option{
		WithTransport(src),
		WithDecoder(formatDecoder),
		WithProgressInterval(0),
	}, opts...)
	d, err := New(loop, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d, loop
}

// eventually drains loop until cond holds.
func eventually(t *testing.T, loop *Loop, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		loop.Drain()
		return cond()
	}, 2*time.Second, time.Millisecond)
}

func shown(s *Slot) string {
	if img := s.Image(); img != nil {
		return img.Format
	}
	return ""
}

// fakeClock advances by step on every call to Now.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}
