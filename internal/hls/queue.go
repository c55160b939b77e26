// Package hls implements the live playlist poller and the parallel,
// order-preserving fragment downloader.
package hls

import (
	"container/heap"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Pop once the queue is closed and drained,
// and by Push/Requeue after Close.
var ErrQueueClosed = errors.New("queue is closed")

// queueCapacity bounds both the pending-URL and downloaded-data queues so a
// stalled consumer applies backpressure to the poller.
const queueCapacity = 100

// sequenced is an item tagged with its position in the stream.
type sequenced[T any] struct {
	seq  int
	item T
}

type itemHeap[T any] []sequenced[T]

func (h itemHeap[T]) Len() int            { return len(h) }
func (h itemHeap[T]) Less(i, j int) bool  { return h[i].seq < h[j].seq }
func (h itemHeap[T]) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *itemHeap[T]) Push(x any)         { *h = append(*h, x.(sequenced[T])) }
func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// sequencedQueue is a bounded priority queue ordered by sequence number.
// Push blocks while the queue is full; Pop blocks while it is empty.
// Requeue puts an item back ignoring the capacity limit, so a consumer
// that popped too early can never deadlock against full producers.
// Close wakes every blocked caller; Pop keeps draining after Close.
type sequencedQueue[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	items    itemHeap[T]
	closed   bool
}

func newSequencedQueue[T any]() *sequencedQueue[T] {
	q := &sequencedQueue[T]{}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push inserts an item, blocking while the queue is at capacity.
func (q *sequencedQueue[T]) Push(seq int, item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) >= queueCapacity && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return ErrQueueClosed
	}
	heap.Push(&q.items, sequenced[T]{seq: seq, item: item})
	q.notEmpty.Signal()
	return nil
}

// Requeue inserts an item regardless of capacity.
func (q *sequencedQueue[T]) Requeue(seq int, item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed && len(q.items) == 0 {
		return ErrQueueClosed
	}
	heap.Push(&q.items, sequenced[T]{seq: seq, item: item})
	q.notEmpty.Signal()
	return nil
}

// Pop removes and returns the lowest-sequence item, blocking while the
// queue is empty. After Close it keeps returning queued items until the
// queue is drained, then ErrQueueClosed.
func (q *sequencedQueue[T]) Pop() (int, T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		var zero T
		return 0, zero, ErrQueueClosed
	}
	it := heap.Pop(&q.items).(sequenced[T])
	q.notFull.Signal()
	return it.seq, it.item, nil
}

// Close marks the queue finished and wakes all blocked callers.
func (q *sequencedQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}

// Len reports how many items are queued.
func (q *sequencedQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
