package telegram

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrLimiterClosed is returned for tasks enqueued after Close.
var ErrLimiterClosed = errors.New("limiter closed")

// Limiter is a FIFO work queue for outgoing send calls. A single processor
// goroutine runs one task at a time and keeps at least the configured interval
// between the completion of one task and the start of the next. A failing task
// never blocks later tasks.
type Limiter struct {
	interval time.Duration
	tasks    chan limiterTask

	mu     sync.Mutex
	closed bool
}

type limiterTask struct {
	ctx  context.Context
	run  func(context.Context) error
	done chan error
}

// NewLimiter starts the processor goroutine. A non-positive interval disables
// the pause between tasks but keeps the FIFO serialization.
func NewLimiter(interval time.Duration) *Limiter {
	l := &Limiter{
		interval: interval,
		tasks:    make(chan limiterTask, 128),
	}
	go l.loop()
	return l
}

// Do enqueues run and blocks until it completed or the context is done. A
// context cancelled while the task is still queued prevents it from starting;
// once dequeued the task runs to completion even if the caller gave up.
func (l *Limiter) Do(ctx context.Context, run func(context.Context) error) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLimiterClosed
	}
	task := limiterTask{ctx: ctx, run: run, done: make(chan error, 1)}
	select {
	case l.tasks <- task:
		l.mu.Unlock()
	default:
		l.mu.Unlock()
		// Queue full: block outside the lock so Close stays responsive.
		select {
		case l.tasks <- task:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case err := <-task.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) loop() {
	for task := range l.tasks {
		if err := task.ctx.Err(); err != nil {
			// Cancelled while queued; skip without consuming the interval.
			task.done <- err
			continue
		}
		task.done <- task.run(task.ctx)
		if l.interval > 0 {
			time.Sleep(l.interval)
		}
	}
}

// Close stops accepting tasks and lets the processor drain the queue.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.tasks)
}
