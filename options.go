package imgload

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meigma/imgload/cache"
	"github.com/meigma/imgload/decode"
	"github.com/meigma/imgload/fetch"
	"github.com/meigma/imgload/transport"
)

// Defaults for a Downloader.
const (
	DefaultWorkers          = 4
	DefaultProgressInterval = 500 * time.Millisecond
)

// Option configures a Downloader.
type Option func(*Downloader) error

// --- Cache Options ---

// WithCapacity sets the hot tier capacity of the default cache.
// It has no effect when WithCache is also given.
func WithCapacity(n int) Option {
	return func(d *Downloader) error {
		if n <= 0 {
			return fmt.Errorf("imgload: capacity must be positive, got %d", n)
		}
		d.capacity = n
		return nil
	}
}

// WithCache replaces the default tiered cache.
func WithCache(c cache.Cache[string, Image]) Option {
	return func(d *Downloader) error {
		if c == nil {
			return errors.New("imgload: nil cache")
		}
		d.cache = c
		return nil
	}
}

// WithPurgeDelay clears the cache after delay passes with no Download or
// Load call.
// Zero, the default, disables the idle purge.
func WithPurgeDelay(delay time.Duration) Option {
	return func(d *Downloader) error {
		if delay < 0 {
			return fmt.Errorf("imgload: negative purge delay %s", delay)
		}
		d.purgeDelay = delay
		return nil
	}
}

// --- Fetch Options ---

// WithTransport sets the transport used by the default fetcher.
// The default is [DefaultTransport].
func WithTransport(t transport.Transport) Option {
	return func(d *Downloader) error {
		if t == nil {
			return errors.New("imgload: nil transport")
		}
		d.transport = t
		return nil
	}
}

// WithDecoder sets the decoder used by the default fetcher.
func WithDecoder(dec decode.Decoder) Option {
	return func(d *Downloader) error {
		if dec == nil {
			return errors.New("imgload: nil decoder")
		}
		d.decoder = dec
		return nil
	}
}

// WithFetcher replaces the fetcher entirely. WithTransport, WithDecoder and
// WithMaxBytes are ignored when it is given.
func WithFetcher(f *fetch.Fetcher) Option {
	return func(d *Downloader) error {
		if f == nil {
			return errors.New("imgload: nil fetcher")
		}
		d.fetcher = f
		return nil
	}
}

// WithMaxBytes fails fetches whose body exceeds n bytes.
func WithMaxBytes(n int64) Option {
	return func(d *Downloader) error {
		d.maxBytes = n
		return nil
	}
}

// WithWorkers bounds the number of concurrent fetches.
func WithWorkers(n int) Option {
	return func(d *Downloader) error {
		if n <= 0 {
			return fmt.Errorf("imgload: workers must be positive, got %d", n)
		}
		d.workers = n
		return nil
	}
}

// --- Progress Options ---

// WithProgressInterval sets the minimum time between progress reports for
// one download. The final report is always delivered.
func WithProgressInterval(interval time.Duration) Option {
	return func(d *Downloader) error {
		if interval < 0 {
			return fmt.Errorf("imgload: negative progress interval %s", interval)
		}
		d.progressInterval = interval
		return nil
	}
}

// WithClock sets the clock used for progress throttling and elapsed time.
func WithClock(c Clock) Option {
	return func(d *Downloader) error {
		if c == nil {
			return errors.New("imgload: nil clock")
		}
		d.clock = c
		return nil
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Downloader) error {
		if logger != nil {
			d.log = logger
		}
		return nil
	}
}

// DownloadOption configures a single Download call.
type DownloadOption func(*downloadConfig)

type downloadConfig struct {
	progress    ProgressFunc
	placeholder *Image
}

// WithProgress reports progress for this download to fn.
//
// For a download already in flight for the same target and key, fn replaces
// the previous sink.
func WithProgress(fn ProgressFunc) DownloadOption {
	return func(c *downloadConfig) {
		c.progress = fn
	}
}

// WithPlaceholder shows img while the download is in flight instead of a
// neutral placeholder.
func WithPlaceholder(img *Image) DownloadOption {
	return func(c *downloadConfig) {
		c.placeholder = img
	}
}
