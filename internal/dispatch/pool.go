package dispatch

import (
	"context"
	"errors"
	"log"
	"sync"
)

var (
	// ErrPoolClosed is returned when submitting to a stopped pool
	ErrPoolClosed = errors.New("dispatch pool is closed")

	// ErrQueueFull is returned when the task queue is at capacity
	ErrQueueFull = errors.New("dispatch queue is full")
)

type task struct {
	name string
	run  func(ctx context.Context)
}

// Pool runs background jobs on a bounded set of workers, decoupled from
// request latency. The context handed to each job is canceled on shutdown;
// jobs are expected to check it cooperatively.
type Pool struct {
	tasks  chan task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewPool creates and starts a pool with the given worker count and queue size
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:  make(chan task, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit enqueues a job without blocking. It fails with ErrQueueFull when
// the queue is at capacity so callers can surface backpressure instead of
// stalling a request.
func (p *Pool) Submit(name string, fn func(ctx context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task{name: name, run: fn}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting work, cancels the job context when waitCtx
// expires, and waits for in-flight jobs to finish.
func (p *Pool) Shutdown(waitCtx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-waitCtx.Done():
		p.cancel()
		<-done
		return waitCtx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		p.runTask(t)
	}
}

func (p *Pool) runTask(t task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("dispatch: task %s panicked: %v", t.name, r)
		}
	}()
	t.run(p.ctx)
}
