package jobqueue

import (
	"context"
	"sync"

	"github.com/yanqian/formfiller/internal/domain/autofill"
)

// Handler runs one queued fill.
type Handler func(ctx context.Context, job autofill.Job) error

// HandlerQueue is a job queue that delivers to a handler set after construction.
type HandlerQueue interface {
	autofill.JobQueue
	SetHandler(handler Handler)
	Close()
}

// ImmediateQueue runs each job on its own goroutine as soon as it is enqueued.
type ImmediateQueue struct {
	mu      sync.RWMutex
	handler Handler
	wg      sync.WaitGroup
}

// NewImmediateQueue constructs the queue.
func NewImmediateQueue() *ImmediateQueue {
	return &ImmediateQueue{}
}

// SetHandler replaces the handler used for queued jobs.
func (q *ImmediateQueue) SetHandler(handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = handler
}

// Enqueue hands the job to the handler in the background. The job outlives
// the request that enqueued it, so the request's cancellation is dropped.
func (q *ImmediateQueue) Enqueue(ctx context.Context, job autofill.Job) error {
	q.mu.RLock()
	handler := q.handler
	q.mu.RUnlock()
	if handler == nil {
		return nil
	}
	jobCtx := context.WithoutCancel(ctx)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		_ = handler(jobCtx, job)
	}()
	return nil
}

// Close waits for running jobs to finish.
func (q *ImmediateQueue) Close() {
	q.wg.Wait()
}

var _ HandlerQueue = (*ImmediateQueue)(nil)
