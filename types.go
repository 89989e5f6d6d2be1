package imgload

import (
	"time"

	"github.com/meigma/imgload/cache"
	"github.com/meigma/imgload/decode"
	"github.com/meigma/imgload/fetch"
)

// Image is a decoded image.
type Image = decode.Image

// NoKey is the empty key. Downloading it clears the target.
const NoKey = ""

// ProgressFunc receives download progress on the scheduler.
//
// percent is bytes read * 100 / content length and may exceed 100 when the
// source under-reports its length. elapsedMs is the time since the download
// started. A cache hit reports (100, 0).
type ProgressFunc func(percent int, elapsedMs int64)

// Clock supplies the current time for progress throttling and elapsed time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Stats is a snapshot of downloader counters.
type Stats struct {
	// Cache holds tier counters when the cache reports them.
	Cache cache.Stats

	// HotEntries and WarmEntries are the current tier sizes, when known.
	HotEntries  int
	WarmEntries int

	FetchesStarted   uint64
	FetchesSucceeded uint64

	// Failures counts failed fetches by kind. Cancelled fetches are
	// counted in Cancelled, not here.
	Failures map[fetch.Kind]uint64

	// Cancelled counts fetches abandoned before their result was used.
	Cancelled uint64

	// Superseded counts bound tasks cancelled by a newer request.
	Superseded uint64

	// Deduplicated counts requests folded into a live task for the same
	// target and key.
	Deduplicated uint64

	// Stale counts results cached but not applied because the target had
	// been rebound.
	Stale uint64

	// InFlight is the number of live tasks.
	InFlight int
}
