package work

import (
	"context"
	"errors"
	"sync"
	"time"

	"odiadev-tts-server-go/internal/util"
)

var (
	ErrWorkQueueClosed = errors.New("work queue closed")
	ErrMaxRetries      = errors.New("max retries exceeded")
)

// WorkItem represents a work item with retry information
type WorkItem[T any] struct {
	Data       T
	Priority   int
	Retries    int
	MaxRetries int
	LastError  error
	CreatedAt  time.Time
}

// WorkHandler processes one item. The context is cancelled when the queue
// is stopped.
type WorkHandler[T any] func(ctx context.Context, item T) error

// FailureHandler is told about items that exhausted their retries.
type FailureHandler[T any] func(item T, err error)

// WorkQueue is a priority-based work queue with retry support
type WorkQueue[T any] struct {
	queue      *util.PriorityQueue[*WorkItem[T]]
	handler    WorkHandler[T]
	onFailure  FailureHandler[T]
	mu         sync.RWMutex
	stopped    bool
	numWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	workers    sync.WaitGroup
	inflight   sync.WaitGroup
	retryDelay time.Duration
}

// Option configures a WorkQueue.
type Option[T any] func(*WorkQueue[T])

// WithFailureHandler registers a callback for items that ran out of retries.
func WithFailureHandler[T any](fn FailureHandler[T]) Option[T] {
	return func(wq *WorkQueue[T]) { wq.onFailure = fn }
}

// WithRetryDelay sets the base delay between retries. The n-th retry waits
// n times this delay, capped at one minute.
func WithRetryDelay[T any](d time.Duration) Option[T] {
	return func(wq *WorkQueue[T]) { wq.retryDelay = d }
}

// NewWorkQueue creates a new work queue and starts numWorkers workers.
func NewWorkQueue[T any](numWorkers int, handler WorkHandler[T], opts ...Option[T]) *WorkQueue[T] {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	wq := &WorkQueue[T]{
		queue:      util.NewPriorityQueue[*WorkItem[T]](),
		handler:    handler,
		numWorkers: numWorkers,
		ctx:        ctx,
		cancel:     cancel,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(wq)
	}

	for i := 0; i < numWorkers; i++ {
		wq.workers.Add(1)
		go wq.run()
	}
	return wq
}

// Submit submits a work item to the queue
func (wq *WorkQueue[T]) Submit(data T, priority int) error {
	return wq.SubmitWithRetries(data, priority, 0)
}

// SubmitWithRetries submits a work item with retry configuration
func (wq *WorkQueue[T]) SubmitWithRetries(data T, priority int, maxRetries int) error {
	wq.mu.RLock()
	defer wq.mu.RUnlock()
	if wq.stopped {
		return ErrWorkQueueClosed
	}

	item := &WorkItem[T]{
		Data:       data,
		Priority:   priority,
		MaxRetries: maxRetries,
		CreatedAt:  time.Now(),
	}
	wq.inflight.Add(1)
	if err := wq.queue.PushItem(item, priority); err != nil {
		wq.inflight.Done()
		return ErrWorkQueueClosed
	}
	return nil
}

// Wait blocks until every submitted item has been handled.
func (wq *WorkQueue[T]) Wait() {
	wq.inflight.Wait()
}

// Stop rejects new work and waits for the workers to finish what is queued.
// Handlers still running when ctx expires see their context cancelled.
func (wq *WorkQueue[T]) Stop(ctx context.Context) error {
	wq.mu.Lock()
	if wq.stopped {
		wq.mu.Unlock()
		return nil
	}
	wq.stopped = true
	wq.mu.Unlock()

	wq.queue.Close()

	done := make(chan struct{})
	go func() {
		wq.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		wq.cancel()
		return nil
	case <-ctx.Done():
		wq.cancel()
		<-done
		return ctx.Err()
	}
}

// IsStopped checks if the work queue is stopped
func (wq *WorkQueue[T]) IsStopped() bool {
	wq.mu.RLock()
	defer wq.mu.RUnlock()
	return wq.stopped
}

// GetStats returns the number of queued items and whether the queue is empty.
func (wq *WorkQueue[T]) GetStats() (queueSize int, isEmpty bool) {
	size := wq.queue.Size()
	return size, size == 0
}

func (wq *WorkQueue[T]) run() {
	defer wq.workers.Done()
	for {
		item, err := wq.queue.PopItem(wq.ctx)
		if err != nil {
			return
		}
		wq.processItem(item)
	}
}

// processItem processes a single work item with retry logic
func (wq *WorkQueue[T]) processItem(item *WorkItem[T]) {
	defer wq.inflight.Done()
	for {
		err := wq.handler(wq.ctx, item.Data)
		if err == nil {
			return
		}

		item.LastError = err
		item.Retries++
		if item.Retries > item.MaxRetries {
			if wq.onFailure != nil {
				wq.onFailure(item.Data, errors.Join(ErrMaxRetries, err))
			}
			return
		}

		backoff := time.Duration(item.Retries) * wq.retryDelay
		if backoff > time.Minute {
			backoff = time.Minute
		}
		select {
		case <-time.After(backoff):
		case <-wq.ctx.Done():
			if wq.onFailure != nil {
				wq.onFailure(item.Data, errors.Join(wq.ctx.Err(), err))
			}
			return
		}
	}
}
