package imgload

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/imgload/cache"
	"github.com/meigma/imgload/decode"
	"github.com/meigma/imgload/fetch"
	"github.com/meigma/imgload/transport"
)

// Downloader coordinates image downloads for targets.
//
// Download, ClearCache and the target callbacks belong to the scheduler's
// context. Load, Stats, Cache and Close may be called from any goroutine.
type Downloader struct {
	sched   Scheduler
	cache   cache.Cache[string, Image]
	fetcher *fetch.Fetcher
	clock   Clock
	log     *slog.Logger

	// Construction-time settings.
	capacity         int
	transport        transport.Transport
	decoder          decode.Decoder
	maxBytes         int64
	workers          int
	progressInterval time.Duration
	purgeDelay       time.Duration

	pool  *semaphore.Weighted
	loads singleflight.Group

	// ctx is the parent of every fetch; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	tasks      map[uint64]*task // live tasks by generation
	purgeTimer *time.Timer
	closed     bool

	id  uint64 // distinguishes bindings issued by different downloaders
	gen atomic.Uint64

	started      atomic.Uint64
	succeeded    atomic.Uint64
	cancelled    atomic.Uint64
	superseded   atomic.Uint64
	deduplicated atomic.Uint64
	stale        atomic.Uint64
	failures     [fetch.Cancelled + 1]atomic.Uint64
}

var downloaderIDs atomic.Uint64

// New creates a Downloader that applies results on sched.
func New(sched Scheduler, opts ...Option) (*Downloader, error) {
	if sched == nil {
		return nil, ErrNilScheduler
	}

	d := &Downloader{
		sched:            sched,
		clock:            systemClock{},
		log:              slog.New(slog.DiscardHandler),
		capacity:         cache.DefaultCapacity,
		workers:          DefaultWorkers,
		progressInterval: DefaultProgressInterval,
		tasks:            make(map[uint64]*task),
		id:               downloaderIDs.Add(1),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	if d.cache == nil {
		d.cache = cache.NewTiered[string, Image](cache.WithCapacity(d.capacity))
	}
	if d.fetcher == nil {
		t := d.transport
		if t == nil {
			t = DefaultTransport()
		}
		dec := d.decoder
		if dec == nil {
			dec = decode.New()
		}
		d.fetcher = fetch.New(t, dec, fetch.WithMaxBytes(d.maxBytes))
	}

	d.pool = semaphore.NewWeighted(int64(d.workers))
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Download shows the image for key on target, fetching it if it is not
// cached. It never blocks.
//
// A cached image is applied immediately and reported as (100, 0) progress.
// Otherwise the target gets a placeholder and the image is applied on the
// scheduler when the fetch completes, provided no later Download for the
// same target has superseded it. Downloading NoKey clears the target.
func (d *Downloader) Download(key string, target Target, opts ...DownloadOption) {
	if target == nil {
		return
	}
	var cfg downloadConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	d.touch()

	if key == NoKey {
		d.supersede(target)
		target.SetImage(nil)
		target.SetBinding(Binding{})
		return
	}

	if img, ok := d.cache.Get(key); ok {
		d.supersede(target)
		target.SetImage(img)
		target.SetBinding(Binding{})
		if cfg.progress != nil {
			cfg.progress(100, 0)
		}
		return
	}

	if t := d.resolve(target.Binding()); t != nil && t.key == key && !t.cancelled.Load() {
		if cfg.progress != nil {
			t.sink = cfg.progress
		}
		d.deduplicated.Add(1)
		d.log.Debug("download already in flight",
			slog.String("key", key),
			slog.String("task", t.id.String()))
		return
	}

	d.supersede(target)

	t := d.newTask(key, target, cfg.progress)
	if t == nil {
		return
	}
	target.SetBinding(t.binding())
	target.SetPlaceholder(Placeholder{Image: cfg.placeholder, Binding: t.binding()})
	d.submit(t)
}

// Load returns the image for key from the cache or by fetching it, without
// involving a target. Concurrent loads of one key share a single fetch. The
// result is cached.
func (d *Downloader) Load(ctx context.Context, key string) (*Image, error) {
	d.touch()
	if img, ok := d.cache.Get(key); ok {
		return img, nil
	}
	if d.isClosed() {
		return nil, ErrClosed
	}

	ch := d.loads.DoChan(key, func() (any, error) {
		d.started.Add(1)
		img, err := d.fetcher.Fetch(d.ctx, key)
		if err != nil {
			d.recordFailure(key, uuid.Nil, err)
			return nil, err
		}
		d.succeeded.Add(1)
		d.cache.Put(key, img)
		return img, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Image), nil
	}
}

// ClearCache empties both cache tiers.
func (d *Downloader) ClearCache() {
	d.cache.Clear()
}

// Cache returns the cache in use.
func (d *Downloader) Cache() cache.Cache[string, Image] {
	return d.cache
}

// Stats returns a snapshot of the downloader's counters.
func (d *Downloader) Stats() Stats {
	s := Stats{
		FetchesStarted:   d.started.Load(),
		FetchesSucceeded: d.succeeded.Load(),
		Failures:         make(map[fetch.Kind]uint64),
		Cancelled:        d.cancelled.Load(),
		Superseded:       d.superseded.Load(),
		Deduplicated:     d.deduplicated.Load(),
		Stale:            d.stale.Load(),
	}
	for _, kind := range fetch.Kinds() {
		if kind == fetch.Cancelled {
			continue
		}
		s.Failures[kind] = d.failures[kind].Load()
	}
	if c, ok := d.cache.(interface{ Stats() cache.Stats }); ok {
		s.Cache = c.Stats()
	}
	if c, ok := d.cache.(interface{ Len() (int, int) }); ok {
		s.HotEntries, s.WarmEntries = c.Len()
	}

	d.mu.Lock()
	s.InFlight = len(d.tasks)
	d.mu.Unlock()
	return s
}

// Close stops the idle purge timer and cancels every in-flight fetch.
// Downloads started after Close are cancelled immediately.
func (d *Downloader) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	if d.purgeTimer != nil {
		d.purgeTimer.Stop()
	}
	live := make([]*task, 0, len(d.tasks))
	for _, t := range d.tasks {
		live = append(live, t)
	}
	d.mu.Unlock()

	for _, t := range live {
		t.abort()
	}
	d.cancel()
	return nil
}

func (d *Downloader) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// resolve returns the live task named by b, or nil.
func (d *Downloader) resolve(b Binding) *task {
	if b.IsZero() || b.owner != d.id {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tasks[b.Gen]
	if !ok || t.key != b.Key {
		return nil
	}
	return t
}

// supersede cancels the task currently bound to target, if any.
func (d *Downloader) supersede(target Target) {
	t := d.resolve(target.Binding())
	if t == nil || t.cancelled.Load() {
		return
	}
	t.detach()
	d.superseded.Add(1)
	d.log.Debug("download superseded",
		slog.String("key", t.key),
		slog.String("task", t.id.String()))
}

func (d *Downloader) newTask(key string, target Target, sink ProgressFunc) *task {
	ctx, cancel := context.WithCancel(d.ctx)
	t := &task{
		owner:  d.id,
		gen:    d.gen.Add(1),
		id:     uuid.New(),
		key:    key,
		target: target,
		sink:   sink,
		start:  d.clock.Now(),
		ctx:    ctx,
		cancel: cancel,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		cancel()
		return nil
	}
	d.tasks[t.gen] = t
	return t
}

// submit runs t's fetch on the worker pool. A task cancelled while waiting
// for a worker never opens its transport.
func (d *Downloader) submit(t *task) {
	d.log.Debug("download queued",
		slog.String("key", t.key),
		slog.String("task", t.id.String()))

	go func() {
		if err := d.pool.Acquire(t.ctx, 1); err != nil {
			d.sched.Post(func() { d.complete(t, nil, &fetch.Error{Kind: fetch.Cancelled, Key: t.key, Err: err}) })
			return
		}
		defer d.pool.Release(1)

		if t.cancelled.Load() {
			d.sched.Post(func() { d.complete(t, nil, &fetch.Error{Kind: fetch.Cancelled, Key: t.key}) })
			return
		}

		d.started.Add(1)
		img, err := d.fetcher.Stream(t.ctx, t.key,
			fetch.WithStop(t.cancelled.Load),
			fetch.WithProgress(func(read, total int64) {
				if percent, elapsed, ok := t.progress(read, total, d.clock.Now(), d.progressInterval); ok {
					d.postProgress(t, percent, elapsed)
				}
			}),
		)
		if err == nil {
			if percent, elapsed, ok := t.finish(d.clock.Now()); ok {
				d.postProgress(t, percent, elapsed)
			}
		}
		d.sched.Post(func() { d.complete(t, img, err) })
	}()
}

// postProgress runs on the worker and hands a report to the scheduler. The
// sink is read at delivery time so a task detached in the meantime drops the
// event.
func (d *Downloader) postProgress(t *task, percent int, elapsedMs int64) {
	d.sched.Post(func() {
		if t.cancelled.Load() || t.sink == nil {
			return
		}
		t.sink(percent, elapsedMs)
	})
}

// complete runs on the scheduler once t's fetch has finished.
func (d *Downloader) complete(t *task, img *Image, err error) {
	d.mu.Lock()
	delete(d.tasks, t.gen)
	d.mu.Unlock()
	t.cancel()

	if t.cancelled.Load() || fetch.IsCancelled(err) {
		d.cancelled.Add(1)
		d.log.Debug("download cancelled",
			slog.String("key", t.key),
			slog.String("task", t.id.String()))
		return
	}
	if err != nil {
		d.recordFailure(t.key, t.id, err)
		return
	}

	d.succeeded.Add(1)
	d.cache.Put(t.key, img)

	if t.target.Binding() != t.binding() {
		d.stale.Add(1)
		d.log.Debug("download result stale",
			slog.String("key", t.key),
			slog.String("task", t.id.String()))
		return
	}
	t.target.SetImage(img)
	t.target.SetBinding(Binding{})

	d.log.Debug("download applied",
		slog.String("key", t.key),
		slog.String("task", t.id.String()),
		slog.Int("bytes", img.Bytes),
		slog.Duration("elapsed", d.clock.Now().Sub(t.start)))
}

func (d *Downloader) recordFailure(key string, id uuid.UUID, err error) {
	kind := fetch.KindOf(err)
	if kind == fetch.Cancelled {
		d.cancelled.Add(1)
		return
	}
	if kind == 0 {
		kind = fetch.ConnectionFailure
	}
	d.failures[kind].Add(1)

	attrs := []any{
		slog.String("key", key),
		slog.String("kind", kind.String()),
		slog.Any("error", err),
	}
	if id != uuid.Nil {
		attrs = append(attrs, slog.String("task", id.String()))
	}
	d.log.Warn("download failed", attrs...)
}

// touch restarts the idle purge timer.
func (d *Downloader) touch() {
	if d.purgeDelay <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.purgeTimer == nil {
		d.purgeTimer = time.AfterFunc(d.purgeDelay, d.purge)
		return
	}
	d.purgeTimer.Reset(d.purgeDelay)
}

func (d *Downloader) purge() {
	if d.isClosed() {
		return
	}
	d.log.Debug("purging idle cache")
	d.cache.Clear()
}
