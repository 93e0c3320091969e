package bus

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrLoopRunning = errors.New("bus: loop already running")
	ErrLoopStopped = errors.New("bus: loop stopped")
	ErrQueueFull   = errors.New("bus: task queue full")
)

const defaultQueueSize = 64

// Loop is a single-goroutine FIFO task executor. Tasks posted before Start
// are queued and run once the loop starts; tasks posted after Stop are
// rejected with ErrLoopStopped.
type Loop struct {
	mu      sync.RWMutex
	tasks   chan func()
	quit    chan struct{}
	done    chan struct{}
	running bool
	stopped bool
}

func NewLoop(queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Loop{
		tasks: make(chan func(), queueSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return ErrLoopStopped
	}
	if l.running {
		return ErrLoopRunning
	}
	l.running = true
	go l.run()
	return nil
}

// Post enqueues fn for execution on the loop goroutine, FIFO relative to
// every other posted task.
func (l *Loop) Post(fn func()) error {
	if fn == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.stopped {
		return ErrLoopStopped
	}
	select {
	case l.tasks <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop rejects further posts, drains tasks already queued, and waits for the
// loop goroutine to exit or ctx to expire. Idempotent.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.stopped {
		l.stopped = true
		close(l.quit)
	}
	running := l.running
	l.mu.Unlock()

	if !running {
		return nil
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.quit:
			for {
				select {
				case fn := <-l.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}
