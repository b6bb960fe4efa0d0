package workers

import (
	"context"
	"errors"
	"sync"

	"media-cdn/internal/logging"
	"media-cdn/internal/metrics"
)

// ErrPoolClosed is returned by Shutdown when called twice.
var ErrPoolClosed = errors.New("worker pool closed")

// TaskFunc is a unit of background work. The context is cancelled only when a
// shutdown deadline expires.
type TaskFunc func(ctx context.Context) error

type task struct {
	name string
	fn   TaskFunc
}

// Pool runs fire-and-forget tasks on a fixed set of goroutines with a bounded
// queue. Submit never blocks; tasks that do not fit are dropped and logged.
type Pool struct {
	queue   chan task
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	pending sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts size workers reading from a queue of queueSize slots.
func NewPool(size, queueSize int) *Pool {
	if size < 1 {
		size = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:  make(chan task, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < size; i++ {
		p.workers.Add(1)
		go p.run()
	}

	logging.Debug("Background pool started: workers=%d, queue=%d", size, queueSize)
	return p
}

// Submit enqueues fn under name. It returns false when the pool is closed or
// the queue is full.
func (p *Pool) Submit(name string, fn TaskFunc) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		logging.Warn("Background task %s dropped: pool closed", name)
		metrics.BackgroundTasksTotal.WithLabelValues("dropped").Inc()
		return false
	}

	p.pending.Add(1)
	select {
	case p.queue <- task{name: name, fn: fn}:
		metrics.BackgroundQueueDepth.Inc()
		return true
	default:
		p.pending.Done()
		logging.Warn("Background task %s dropped: queue full", name)
		metrics.BackgroundTasksTotal.WithLabelValues("dropped").Inc()
		return false
	}
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Shutdown stops accepting tasks and waits for queued work to drain. If ctx
// expires first, running tasks see their context cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) run() {
	defer p.workers.Done()

	for t := range p.queue {
		metrics.BackgroundQueueDepth.Dec()
		p.execute(t)
	}
}

func (p *Pool) execute(t task) {
	defer p.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Background task %s panicked: %v", t.name, r)
			metrics.BackgroundTasksTotal.WithLabelValues("error").Inc()
		}
	}()

	if err := t.fn(p.ctx); err != nil {
		logging.Warn("Background task %s failed: %v", t.name, err)
		metrics.BackgroundTasksTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.BackgroundTasksTotal.WithLabelValues("success").Inc()
}
