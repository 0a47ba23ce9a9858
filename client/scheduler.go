package client

import (
	"sync"

	"go.uber.org/zap"
)

// Scheduler runs functions later, outside the caller's stack.
//
// Handlers are always invoked through a Scheduler so that a handler may
// submit new commands without re-entering the connection. Implementations
// must run functions in the order they were scheduled, one at a time, and
// Schedule must not block.
type Scheduler interface {
	Schedule(fn func())
}

// Loop is a Scheduler backed by a single goroutine and an unbounded queue.
type Loop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool

	done chan struct{}

	log *zap.Logger
}

var _ Scheduler = (*Loop)(nil)

func NewLoop(log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}

	l := &Loop{
		done: make(chan struct{}),
		log:  log,
	}
	l.cond = sync.NewCond(&l.mu)

	go l.run()

	return l
}

// Schedule queues fn. Functions scheduled after Close are dropped.
func (l *Loop) Schedule(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		l.log.Debug("Dropping function scheduled after close")
		return
	}

	l.queue = append(l.queue, fn)
	l.cond.Signal()
}

// Close runs what is already queued and stops the loop. It must not be
// called from a scheduled function.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}

	l.closed = true
	l.cond.Signal()
	l.mu.Unlock()

	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}

		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}

		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			l.call(fn)
		}
	}
}

// call keeps the loop alive when a handler panics.
func (l *Loop) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("Scheduled function panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	fn()
}
