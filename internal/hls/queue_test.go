package hls

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencedQueueOrdering(t *testing.T) {
	q := newSequencedQueue[string]()

	require.NoError(t, q.Push(2, "c"))
	require.NoError(t, q.Push(0, "a"))
	require.NoError(t, q.Push(1, "b"))

	for i, want := range []string{"a", "b", "c"} {
		seq, item, err := q.Pop()
		require.NoError(t, err)
		assert.Equal(t, i, seq)
		assert.Equal(t, want, item)
	}
}

func TestSequencedQueuePushBlocksAtCapacity(t *testing.T) {
	q := newSequencedQueue[int]()
	for i := 0; i < queueCapacity; i++ {
		require.NoError(t, q.Push(i, i))
	}

	pushed := make(chan struct{})
	go func() {
		q.Push(queueCapacity, queueCapacity)
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatal("push should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	// Requeue ignores the capacity limit.
	require.NoError(t, q.Requeue(-1, -1))

	// Popping frees a slot and unblocks the pending push.
	seq, _, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, -1, seq)

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("push did not unblock after a pop")
	}
}

func TestSequencedQueueClose(t *testing.T) {
	q := newSequencedQueue[int]()
	require.NoError(t, q.Push(0, 10))
	q.Close()

	// Close drains before reporting closed.
	seq, item, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, 0, seq)
	assert.Equal(t, 10, item)

	_, _, err = q.Pop()
	assert.ErrorIs(t, err, ErrQueueClosed)

	assert.ErrorIs(t, q.Push(1, 11), ErrQueueClosed)
	q.Close()
}

func TestSequencedQueueCloseWakesBlockedPop(t *testing.T) {
	q := newSequencedQueue[int]()

	done := make(chan error, 1)
	go func() {
		_, _, err := q.Pop()
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake on close")
	}
}
