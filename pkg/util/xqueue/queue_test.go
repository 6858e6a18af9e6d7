package xqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_RunsAllJobs(t *testing.T) {
	q := New(2)

	var done atomic.Int32
	for i := 0; i < 10; i++ {
		q.Enqueue(func(context.Context) error {
			done.Add(1)
			return nil
		})
	}

	require.NoError(t, q.Drain(context.Background()))
	assert.Equal(t, int32(10), done.Load())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_ConcurrencyCeiling(t *testing.T) {
	const limit = 3
	q := New(limit)

	var current, peak atomic.Int32
	for i := 0; i < 30; i++ {
		q.Enqueue(func(context.Context) error {
			n := current.Add(1)
			// 记录观测到的最大并发
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			current.Add(-1)
			return nil
		})
	}

	require.NoError(t, q.Drain(context.Background()))
	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Greater(t, peak.Load(), int32(0))
}

func TestQueue_ConcurrencyCoercedToOne(t *testing.T) {
	q := New(0)
	assert.Equal(t, 1, q.Concurrency())
}

func TestQueue_DrainCoversNestedEnqueue(t *testing.T) {
	// 运行中的作业在结束前入队的新作业也被排空等待覆盖
	q := New(1)

	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	q.Enqueue(func(context.Context) error {
		record("outer")
		q.Enqueue(func(context.Context) error {
			record("inner")
			return nil
		})
		time.Sleep(5 * time.Millisecond)
		return nil
	})

	require.NoError(t, q.Drain(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestQueue_ConcurrentDrains(t *testing.T) {
	q := New(1)

	release := make(chan struct{})
	q.Enqueue(func(context.Context) error {
		<-release
		return nil
	})

	var wg sync.WaitGroup
	var completed atomic.Int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, q.Drain(context.Background()))
			completed.Add(1)
		}()
	}

	// 等待者尚未被唤醒
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), completed.Load())

	close(release)
	wg.Wait()
	assert.Equal(t, int32(5), completed.Load())
}

func TestQueue_DrainOnIdleQueue(t *testing.T) {
	q := New(2)
	require.NoError(t, q.Drain(context.Background()))
}

func TestQueue_DrainContextCancel(t *testing.T) {
	q := New(1)

	release := make(chan struct{})
	defer close(release)
	q.Enqueue(func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := q.Drain(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_SwallowsJobErrors(t *testing.T) {
	var reported []error
	var mu sync.Mutex
	q := New(1, WithOnError(func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}))

	jobErr := errors.New("write failed")
	q.Enqueue(func(context.Context) error { return jobErr })
	q.Enqueue(func(context.Context) error { return nil })

	require.NoError(t, q.Drain(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], jobErr)
}

func TestQueue_RecoversJobPanic(t *testing.T) {
	var reported atomic.Int32
	q := New(1, WithOnError(func(error) { reported.Add(1) }))

	var done atomic.Bool
	q.Enqueue(func(context.Context) error { panic("job panic") })
	q.Enqueue(func(context.Context) error {
		done.Store(true)
		return nil
	})

	require.NoError(t, q.Drain(context.Background()))
	assert.True(t, done.Load())
	assert.Equal(t, int32(1), reported.Load())
}

func TestQueue_NilJobIgnored(t *testing.T) {
	q := New(1)
	q.Enqueue(nil)
	assert.Equal(t, 0, q.Len())
	require.NoError(t, q.Drain(context.Background()))
}

func TestQueue_PreservesStartOrder(t *testing.T) {
	q := New(1)

	var order []int
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		i := i
		q.Enqueue(func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}

	require.NoError(t, q.Drain(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 20)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}
