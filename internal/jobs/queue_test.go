package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFOOrder(t *testing.T) {
	q := NewQueue()
	q.AddJob(Item{JobID: "a", UserID: "u1"})
	q.AddJob(Item{JobID: "b", UserID: "u1"})
	assert.Equal(t, 2, q.Length())

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "a", first.JobID)

	second, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "b", second.JobID)
	assert.Zero(t, q.Length())
}

func TestQueue_DequeueCtx_UnblocksOnCancel(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := q.DequeueCtx(ctx)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("DequeueCtx did not unblock after cancel")
	}
}

func TestQueue_Close_UnblocksWaitingDequeue(t *testing.T) {
	q := NewQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not unblock after Close")
	}
}
