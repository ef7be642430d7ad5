package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_DrainFIFO(t *testing.T) {
	q := NewQueue()

	var got []int
	for i := 1; i <= 3; i++ {
		i := i
		require.NoError(t, q.Schedule(func() { got = append(got, i) }))
	}
	assert.Equal(t, 3, q.Len())

	assert.Equal(t, 3, q.Drain())
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, 0, q.Drain())
}

func TestQueue_ScheduleAfterClose(t *testing.T) {
	q := NewQueue()
	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Schedule(func() {}), ErrClosed)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_RunExecutesOnSingleGoroutineInOrder(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	const producers, perProducer = 4, 250
	var (
		mu       sync.Mutex
		seen     = make(map[int][]int)
		inFlight atomic.Int32
		overlap  atomic.Bool
		wg       sync.WaitGroup
	)
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				i := i
				require.NoError(t, q.Schedule(func() {
					if inFlight.Add(1) > 1 {
						overlap.Store(true)
					}
					mu.Lock()
					seen[p] = append(seen[p], i)
					mu.Unlock()
					inFlight.Add(-1)
				}))
			}
		}(p)
	}
	wg.Wait()

	q.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	assert.False(t, overlap.Load(), "tasks must not interleave")
	for p := 0; p < producers; p++ {
		require.Len(t, seen[p], perProducer)
		for i, v := range seen[p] {
			assert.Equal(t, i, v, "producer %d order", p)
		}
	}
}

func TestQueue_CloseLetsBacklogFinish(t *testing.T) {
	q := NewQueue()
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Schedule(func() { ran.Add(1) }))
	}
	q.Close()

	require.NoError(t, q.Run(context.Background()))
	assert.Equal(t, int32(10), ran.Load())
}

func TestQueue_RunStopsOnContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not observe cancellation")
	}
}

func TestQueue_PanicIsRecovered(t *testing.T) {
	var recovered any
	q := NewQueue(WithPanicHandler(func(r any) { recovered = r }))

	var after bool
	require.NoError(t, q.Schedule(func() { panic("handler bug") }))
	require.NoError(t, q.Schedule(func() { after = true }))

	assert.Equal(t, 2, q.Drain())
	assert.Equal(t, "handler bug", recovered)
	assert.True(t, after)
}

func TestQueue_NilTaskIgnored(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Schedule(nil))
	assert.Equal(t, 0, q.Len())
}
