package imgload

import (
	"errors"

	"github.com/meigma/imgload/fetch"
	"github.com/meigma/imgload/transport"
)

// ErrClosed is returned by Load after Close.
var ErrClosed = errors.New("imgload: downloader closed")

// ErrNilScheduler is returned by New when no scheduler is given.
var ErrNilScheduler = errors.New("imgload: nil scheduler")

// Errors re-exported from fetch.
var (
	// ErrMalformedKey is returned when a key cannot be turned into a location.
	ErrMalformedKey = fetch.ErrMalformedKey

	// ErrConnection is returned when the source cannot be reached or refuses the key.
	ErrConnection = fetch.ErrConnection

	// ErrStream is returned when the body fails or exceeds limits mid-transfer.
	ErrStream = fetch.ErrStream

	// ErrDecode is returned when the bytes cannot be decoded.
	ErrDecode = fetch.ErrDecode

	// ErrCancelled is returned when a fetch is abandoned.
	ErrCancelled = fetch.ErrCancelled

	// ErrNotFound matches fetch errors whose source reported the key missing.
	ErrNotFound = transport.ErrNotFound
)

// Kind classifies a failed fetch.
type Kind = fetch.Kind

// Failure kinds.
const (
	MalformedKey      = fetch.MalformedKey
	ConnectionFailure = fetch.ConnectionFailure
	StreamError       = fetch.StreamError
	DecodeFailure     = fetch.DecodeFailure
	Cancelled         = fetch.Cancelled
)

// KindOf returns the failure kind of err, or 0 when err is not a fetch error.
func KindOf(err error) Kind {
	return fetch.KindOf(err)
}
