package media

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int](3)
	assert.Equal(t, 3, q.Cap())
	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Push(i))
	}
	assert.False(t, q.TryPush(4))
	assert.Equal(t, 3, q.Len())

	for i := 1; i <= 3; i++ {
		v, err := q.Pop()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestQueueCloseDrains(t *testing.T) {
	q := NewQueue[string](2)
	require.NoError(t, q.Push("a"))
	require.NoError(t, q.Close())
	assert.True(t, q.Closed())

	assert.ErrorIs(t, q.Push("b"), ErrQueueClosed)
	assert.ErrorIs(t, q.Close(), ErrQueueClosed)

	v, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	_, err = q.Pop()
	assert.ErrorIs(t, err, io.EOF)
}

func TestQueueAbortWakesWaiters(t *testing.T) {
	q := NewQueue[int](1)
	require.NoError(t, q.Push(1))

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- q.Push(2)
	}()
	go func() {
		defer wg.Done()
		empty := NewQueue[int](1)
		go func() {
			time.Sleep(10 * time.Millisecond)
			empty.Abort()
		}()
		_, err := empty.Pop()
		errs <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Abort()
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, ErrQueueAborted)
	}
	assert.Equal(t, 0, q.Len())
	_, err := q.Pop()
	assert.ErrorIs(t, err, ErrQueueAborted)
}

func TestQueuePushLatest(t *testing.T) {
	q := NewQueue[int](2)
	for i := 1; i <= 2; i++ {
		n, err := q.PushLatest(i)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	n, err := q.PushLatest(3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v, _ := q.Pop()
	assert.Equal(t, 2, v)
	v, _ = q.Pop()
	assert.Equal(t, 3, v)
}

func TestQueueBlockingPushUnblocksOnPop(t *testing.T) {
	q := NewQueue[int](1)
	require.NoError(t, q.Push(1))

	done := make(chan error)
	go func() { done <- q.Push(2) }()

	select {
	case <-done:
		t.Fatal("push returned while queue was full")
	case <-time.After(20 * time.Millisecond):
	}
	v, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	require.NoError(t, <-done)
}
