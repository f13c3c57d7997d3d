package util

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityQueueOrdersByPriorityThenArrival(t *testing.T) {
	pq := NewPriorityQueue[string]()
	require.NoError(t, pq.PushItem("anonymous-1", 0))
	require.NoError(t, pq.PushItem("business", 3))
	require.NoError(t, pq.PushItem("anonymous-2", 0))
	require.NoError(t, pq.PushItem("starter", 2))

	var got []string
	for !pq.IsEmpty() {
		v, err := pq.TryPop()
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []string{"business", "starter", "anonymous-1", "anonymous-2"}, got)

	_, err := pq.TryPop()
	assert.ErrorIs(t, err, ErrPriorityQueueEmpty)
}

func TestPriorityQueuePopBlocksUntilPush(t *testing.T) {
	pq := NewPriorityQueue[int]()
	got := make(chan int, 1)
	go func() {
		v, err := pq.PopItem(context.Background())
		if err == nil {
			got <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, pq.PushItem(7, 1))
	select {
	case v := <-got:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken")
	}
}

func TestPriorityQueueCloseDrainsThenFails(t *testing.T) {
	pq := NewPriorityQueue[int]()
	require.NoError(t, pq.PushItem(1, 0))
	pq.Close()
	pq.Close()

	assert.ErrorIs(t, pq.PushItem(2, 0), ErrPriorityQueueClosed)

	v, err := pq.PopItem(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = pq.PopItem(context.Background())
	assert.ErrorIs(t, err, ErrPriorityQueueClosed)
}

func TestPriorityQueuePopHonoursContext(t *testing.T) {
	pq := NewPriorityQueue[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := pq.PopItem(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
