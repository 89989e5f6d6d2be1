package imgload

import (
	"context"
	"sync"
)

// Scheduler runs functions on the context that owns targets, such as a UI
// thread. Post must not block and must run functions in the order posted.
type Scheduler interface {
	Post(fn func())
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(fn func())

// Post calls f(fn).
func (f SchedulerFunc) Post(fn func()) {
	f(fn)
}

// Loop is a Scheduler backed by an unbounded FIFO queue. Posted functions
// run on whichever goroutine calls Run or Drain.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	notify chan struct{}
}

var _ Scheduler = (*Loop)(nil)

// NewLoop creates an empty Loop.
func NewLoop() *Loop {
	return &Loop{notify: make(chan struct{}, 1)}
}

// Post queues fn. It never blocks.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Run executes posted functions on the calling goroutine until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.notify:
		}
	}
}

// Drain runs the functions queued at the time of the call, plus any they
// post, and returns how many ran.
func (l *Loop) Drain() int {
	n := 0
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			fn()
			n++
		}
	}
}

// Len returns the number of queued functions.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}
