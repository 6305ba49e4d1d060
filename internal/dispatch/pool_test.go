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

func TestPoolRunsSubmittedTasks(t *testing.T) {
	p := NewPool(2, 8)
	defer p.Shutdown(context.Background())

	var ran int64
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		err := p.Submit("task", func(ctx context.Context) {
			defer wg.Done()
			atomic.AddInt64(&ran, 1)
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Equal(t, int64(5), atomic.LoadInt64(&ran))
}

func TestPoolRejectsWhenQueueFull(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Shutdown(context.Background())

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit("blocker", func(ctx context.Context) {
		close(started)
		<-block
	}))
	<-started

	// Worker is busy; one slot in the queue, the next submit must fail.
	require.NoError(t, p.Submit("queued", func(ctx context.Context) {}))
	err := p.Submit("overflow", func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
}

func TestPoolRejectsAfterShutdown(t *testing.T) {
	p := NewPool(1, 1)
	require.NoError(t, p.Shutdown(context.Background()))

	err := p.Submit("late", func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPoolShutdownWaitsForInflightTasks(t *testing.T) {
	p := NewPool(1, 1)

	var finished atomic.Bool
	started := make(chan struct{})
	require.NoError(t, p.Submit("slow", func(ctx context.Context) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	}))
	<-started

	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, finished.Load())
}

func TestPoolShutdownCancelsTaskContextOnDeadline(t *testing.T) {
	p := NewPool(1, 1)

	started := make(chan struct{})
	canceled := make(chan struct{})
	require.NoError(t, p.Submit("cooperative", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(canceled)
	}))
	<-started

	waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Shutdown(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("task context was never canceled")
	}
}

func TestPoolRecoversFromPanickingTask(t *testing.T) {
	p := NewPool(1, 2)
	defer p.Shutdown(context.Background())

	require.NoError(t, p.Submit("boom", func(ctx context.Context) {
		panic("boom")
	}))

	// The worker must survive the panic and keep processing.
	done := make(chan struct{})
	require.NoError(t, p.Submit("after", func(ctx context.Context) {
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panicking task")
	}
}

func TestPoolShutdownIsIdempotent(t *testing.T) {
	p := NewPool(1, 1)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}
