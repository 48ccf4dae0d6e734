package poller

import (
	"context"
	"sync"
)

// loop runs posted events one at a time on a single goroutine. Every piece
// of poller state is owned by this goroutine.
type loop struct {
	events chan func()
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newLoop(depth int) *loop {
	return &loop{
		events: make(chan func(), depth),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// post queues f. It returns false once the loop has been stopped.
func (l *loop) post(f func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.events <- f:
		return true
	case <-l.quit:
		return false
	}
}

// call runs f on the loop and waits for it to return.
func (l *loop) call(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	if !l.post(func() {
		defer close(finished)
		f()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *loop) run() {
	defer close(l.done)
	for {
		select {
		case f := <-l.events:
			f()
		case <-l.quit:
			return
		}
	}
}

func (l *loop) stop() {
	l.once.Do(func() { close(l.quit) })
}
