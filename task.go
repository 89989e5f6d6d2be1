package imgload

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// task is one in-flight fetch bound to a target.
//
// sink and target are only touched on the scheduler. The throttle fields are
// only touched by the worker running the fetch.
type task struct {
	owner  uint64
	gen    uint64
	id     uuid.UUID
	key    string
	target Target
	sink   ProgressFunc
	start  time.Time

	cancelled atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc

	lastReport    time.Time
	reported      bool
	lastRead      int64
	lastTotal     int64
	deliveredRead int64
}

func (t *task) binding() Binding {
	return Binding{Key: t.key, Gen: t.gen, owner: t.owner}
}

// abort marks the task cancelled and signals its worker. The sink is left
// alone so abort is safe off the scheduler; see detach.
func (t *task) abort() {
	t.cancelled.Store(true)
	t.cancel()
}

// detach cancels the task and drops its sink so late progress events are
// discarded. It must run on the scheduler.
func (t *task) detach() {
	t.abort()
	t.sink = nil
}

// progress decides whether a (read, total) report from the worker should be
// delivered and returns the percentage and elapsed time if so. At most one
// report is delivered per interval; reports with an unknown total are never
// delivered.
func (t *task) progress(read, total int64, now time.Time, interval time.Duration) (percent int, elapsedMs int64, ok bool) {
	t.lastRead, t.lastTotal = read, total
	if t.reported && now.Sub(t.lastReport) < interval {
		return 0, 0, false
	}
	return t.deliver(read, total, now)
}

// finish returns the completion report for a fetch that ended successfully.
// It bypasses the interval but is not repeated when the last delivered
// report already covered every byte read.
func (t *task) finish(now time.Time) (percent int, elapsedMs int64, ok bool) {
	if t.reported && t.deliveredRead == t.lastRead {
		return 0, 0, false
	}
	return t.deliver(t.lastRead, t.lastTotal, now)
}

func (t *task) deliver(read, total int64, now time.Time) (percent int, elapsedMs int64, ok bool) {
	if total <= 0 || t.cancelled.Load() {
		return 0, 0, false
	}
	t.reported = true
	t.lastReport = now
	t.deliveredRead = read
	return int(read * 100 / total), now.Sub(t.start).Milliseconds(), true
}
