package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")

	// ErrAlreadyQueued is returned by Enqueue when a task with the same key is
	// still waiting. Callers that only need the work done can ignore it.
	ErrAlreadyQueued = errors.New("task already queued")
)

// Queue is a bounded FIFO of tasks that rejects duplicates by key. It is a
// Source for a Pool.
type Queue struct {
	logger *slog.Logger
	tasks  chan Task

	mu      sync.Mutex
	waiting map[string]struct{}
	closed  bool
}

var _ Source = (*Queue)(nil)

// NewQueue creates a queue holding at most size waiting tasks.
func NewQueue(size int, logger *slog.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		logger:  logger,
		tasks:   make(chan Task, size),
		waiting: make(map[string]struct{}),
	}
}

// Enqueue adds t without blocking.
func (q *Queue) Enqueue(t Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	key := t.Key()
	if _, dup := q.waiting[key]; dup {
		return fmt.Errorf("%w: %s", ErrAlreadyQueued, key)
	}

	select {
	case q.tasks <- t:
		q.waiting[key] = struct{}{}
		q.logger.Debug("task enqueued",
			slog.String("task_id", t.ID().String()),
			slog.String("task_type", t.Type()),
			slog.String("task_key", key),
			slog.Int("queue_len", len(q.tasks)))
		return nil
	default:
		return fmt.Errorf("%w: capacity %d reached", ErrQueueFull, cap(q.tasks))
	}
}

// Next implements Source. Taking a task frees its key, so work requested
// while the task runs is queued again rather than absorbed.
func (q *Queue) Next(ctx context.Context) (Task, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case t, ok := <-q.tasks:
		if !ok {
			return nil, false
		}
		q.mu.Lock()
		delete(q.waiting, t.Key())
		q.mu.Unlock()
		return t, true
	}
}

// Len returns the number of waiting tasks.
func (q *Queue) Len() int {
	return len(q.tasks)
}

// Close stops accepting tasks. Tasks already waiting can still be taken.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.tasks)
	q.logger.Info("task queue closed", slog.Int("dropped", len(q.tasks)))
}
