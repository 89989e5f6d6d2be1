package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/meigma/imgload/transport"
)

// Kind classifies why a fetch produced no image.
type Kind uint8

// Failure kinds.
const (
	// MalformedKey means the key could not be turned into a location.
	MalformedKey Kind = iota + 1
	// ConnectionFailure means the source could not be reached or refused the key.
	ConnectionFailure
	// StreamError means the body failed or exceeded limits mid-transfer.
	StreamError
	// DecodeFailure means the bytes arrived but could not be decoded.
	DecodeFailure
	// Cancelled means the fetch was abandoned. It is a suppression signal,
	// not a user-facing error.
	Cancelled
)

var kindNames = map[Kind]string{
	MalformedKey:      "malformed_key",
	ConnectionFailure: "connection_failure",
	StreamError:       "stream_error",
	DecodeFailure:     "decode_failure",
	Cancelled:         "cancelled",
}

// Kinds lists every failure kind.
func Kinds() []Kind {
	return []Kind{MalformedKey, ConnectionFailure, StreamError, DecodeFailure, Cancelled}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Sentinel errors, one per kind. An *Error matches the sentinel of its kind
// with errors.Is.
var (
	ErrMalformedKey = errors.New("fetch: malformed key")
	ErrConnection   = errors.New("fetch: connection failure")
	ErrStream       = errors.New("fetch: stream error")
	ErrDecode       = errors.New("fetch: decode failure")
	ErrCancelled    = errors.New("fetch: cancelled")
)

var kindSentinels = map[Kind]error{
	MalformedKey:      ErrMalformedKey,
	ConnectionFailure: ErrConnection,
	StreamError:       ErrStream,
	DecodeFailure:     ErrDecode,
	Cancelled:         ErrCancelled,
}

// Error describes a failed fetch.
type Error struct {
	Kind Kind
	Key  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.Key, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Key, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf returns the kind of err, or 0 when err is not a fetch error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// IsCancelled reports whether err represents an abandoned fetch.
func IsCancelled(err error) bool {
	return KindOf(err) == Cancelled
}

// classifyOpen maps a transport error to a kind.
func classifyOpen(ctx context.Context, err error) Kind {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return Cancelled
	case errors.Is(err, transport.ErrMalformedKey):
		return MalformedKey
	default:
		return ConnectionFailure
	}
}
