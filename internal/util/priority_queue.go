package util

import (
	"container/heap"
	"context"
	"errors"
	"sync"
)

var (
	ErrPriorityQueueClosed = errors.New("priority queue closed")
	ErrPriorityQueueEmpty  = errors.New("priority queue empty")
)

// PriorityItem represents an item with priority
type PriorityItem[T any] struct {
	Value    T
	Priority int // Higher number means higher priority
	Index    int // Used by heap interface
	seq      uint64
}

// PriorityQueue is a blocking max-heap. Items of equal priority pop in
// insertion order.
type PriorityQueue[T any] struct {
	items  []*PriorityItem[T]
	mu     sync.Mutex
	closed bool
	seq    uint64
	ready  chan struct{}
	done   chan struct{}
}

func NewPriorityQueue[T any]() *PriorityQueue[T] {
	pq := &PriorityQueue[T]{
		items: make([]*PriorityItem[T], 0),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	heap.Init(pq)
	return pq
}

// Len implements heap.Interface
func (pq *PriorityQueue[T]) Len() int { return len(pq.items) }

// Less implements heap.Interface (higher priority first)
func (pq *PriorityQueue[T]) Less(i, j int) bool {
	if pq.items[i].Priority != pq.items[j].Priority {
		return pq.items[i].Priority > pq.items[j].Priority
	}
	return pq.items[i].seq < pq.items[j].seq
}

// Swap implements heap.Interface
func (pq *PriorityQueue[T]) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
	pq.items[i].Index = i
	pq.items[j].Index = j
}

// Push implements heap.Interface
func (pq *PriorityQueue[T]) Push(x interface{}) {
	n := len(pq.items)
	item := x.(*PriorityItem[T])
	item.Index = n
	pq.items = append(pq.items, item)
}

// Pop implements heap.Interface
func (pq *PriorityQueue[T]) Pop() interface{} {
	old := pq.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	pq.items = old[0 : n-1]
	return item
}

// PushItem adds an item and wakes one waiting consumer.
func (pq *PriorityQueue[T]) PushItem(value T, priority int) error {
	pq.mu.Lock()
	if pq.closed {
		pq.mu.Unlock()
		return ErrPriorityQueueClosed
	}
	pq.seq++
	heap.Push(pq, &PriorityItem[T]{Value: value, Priority: priority, seq: pq.seq})
	pq.mu.Unlock()

	pq.signal()
	return nil
}

func (pq *PriorityQueue[T]) signal() {
	select {
	case pq.ready <- struct{}{}:
	default:
	}
}

// TryPop returns the highest priority item without blocking.
func (pq *PriorityQueue[T]) TryPop() (T, error) {
	var zero T
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if len(pq.items) == 0 {
		if pq.closed {
			return zero, ErrPriorityQueueClosed
		}
		return zero, ErrPriorityQueueEmpty
	}
	item := heap.Pop(pq).(*PriorityItem[T])
	if len(pq.items) > 0 {
		pq.signal()
	}
	return item.Value, nil
}

// PopItem blocks until an item is available, the queue is closed and empty,
// or ctx is done. Items queued before Close are still handed out.
func (pq *PriorityQueue[T]) PopItem(ctx context.Context) (T, error) {
	var zero T
	for {
		v, err := pq.TryPop()
		if !errors.Is(err, ErrPriorityQueueEmpty) {
			return v, err
		}
		select {
		case <-pq.ready:
		case <-pq.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close rejects further pushes and wakes blocked consumers.
func (pq *PriorityQueue[T]) Close() {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if pq.closed {
		return
	}
	pq.closed = true
	close(pq.done)
}

func (pq *PriorityQueue[T]) Size() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return len(pq.items)
}

// IsEmpty checks if the queue is empty
func (pq *PriorityQueue[T]) IsEmpty() bool {
	return pq.Size() == 0
}
