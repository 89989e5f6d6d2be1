// Package transport defines the byte sources an image fetch reads from.
//
// A [Transport] opens a key (usually a URL) and returns a streaming body plus
// whatever length metadata the source knows. [Mux] dispatches keys to scheme
// handlers, so one fetcher can serve http, https and oci keys at once.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
)

// Sentinel errors for transports.
var (
	// ErrMalformedKey is returned when a key cannot be interpreted as a
	// location the transport can open.
	ErrMalformedKey = errors.New("transport: malformed key")

	// ErrNotFound is returned when the source reports the key does not exist.
	ErrNotFound = errors.New("transport: not found")
)

// Response is an opened byte stream.
type Response struct {
	// Body streams the content. The caller must close it.
	Body io.ReadCloser

	// ContentLength is the number of bytes Body is expected to yield,
	// or a value <= 0 when unknown.
	ContentLength int64

	// ContentType is the media type reported by the source, if any.
	ContentType string
}

// Transport opens keys for reading.
//
// Implementations must be safe for concurrent use and must honor ctx
// cancellation for both Open and subsequent reads of Body.
type Transport interface {
	Open(ctx context.Context, key string) (*Response, error)
}

// Func adapts a function to the Transport interface.
type Func func(ctx context.Context, key string) (*Response, error)

// Open calls f(ctx, key).
func (f Func) Open(ctx context.Context, key string) (*Response, error) {
	return f(ctx, key)
}

// SchemeHandler is a Transport bound to a set of URL schemes.
type SchemeHandler interface {
	Transport

	// Schemes returns the lower-case schemes (e.g. "http") this handler serves.
	Schemes() []string
}

// StatusError reports a non-success status from a remote source.
type StatusError struct {
	Key        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: %s: unexpected status %s", e.Key, e.Status)
}

// Is reports a 404 status as [ErrNotFound].
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == 404
}

// Mux routes keys to handlers by URL scheme.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]SchemeHandler
}

var _ Transport = (*Mux)(nil)

// NewMux creates a Mux with the given handlers registered.
func NewMux(handlers ...SchemeHandler) *Mux {
	m := &Mux{handlers: make(map[string]SchemeHandler)}
	for _, h := range handlers {
		m.Register(h)
	}
	return m
}

// Register adds h for each of its schemes, replacing earlier registrations.
func (m *Mux) Register(h SchemeHandler) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, scheme := range h.Schemes() {
		m.handlers[strings.ToLower(scheme)] = h
	}
}

// Schemes returns the registered schemes.
func (m *Mux) Schemes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.handlers))
	for scheme := range m.handlers {
		out = append(out, scheme)
	}
	return out
}

// Open implements Transport.
func (m *Mux) Open(ctx context.Context, key string) (*Response, error) {
	u, err := url.Parse(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("%w: %q has no scheme", ErrMalformedKey, key)
	}

	scheme := strings.ToLower(u.Scheme)
	m.mu.RLock()
	h, ok := m.handlers[scheme]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrMalformedKey, scheme)
	}

	return h.Open(ctx, key)
}
