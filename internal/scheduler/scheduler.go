package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"media-cdn/internal/cache"
	"media-cdn/internal/logging"
	"media-cdn/internal/metrics"
)

var (
	// ErrUnknownKind is returned for a kind with no registered task.
	ErrUnknownKind = errors.New("unknown task kind")
	// ErrClosed is returned once the scheduler is shutting down.
	ErrClosed = errors.New("scheduler closed")
)

// Payload identifies the work of a job. Its JSON form is the job signature.
type Payload struct {
	CacheKey  string            `json:"cacheKey"`
	Origin    string            `json:"origin"`
	Modifiers map[string]string `json:"modifiers"`
}

// Task produces a derivative. It runs detached from any request context.
type Task func(ctx context.Context, p Payload) (*cache.Entry, error)

type queue struct {
	kind string
	task Task
	sem  *semaphore.Weighted
}

// Scheduler runs at most one job per signature at a time and bounds the
// number of concurrently executing jobs per kind.
type Scheduler struct {
	group singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	jobs   sync.WaitGroup

	mu      sync.Mutex
	queues   map[string]*queue
	waiters  map[string]int
	inflight map[string]bool
	closed   bool
}

// New creates an empty scheduler. Register each kind before calling Run.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:     ctx,
		cancel:  cancel,
		queues:   make(map[string]*queue),
		waiters:  make(map[string]int),
		inflight: make(map[string]bool),
	}
}

// Register installs task for kind with the given concurrency bound (minimum 1).
func (s *Scheduler) Register(kind string, concurrency int, task Task) {
	if concurrency < 1 {
		concurrency = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[kind] = &queue{
		kind: kind,
		task: task,
		sem:  semaphore.NewWeighted(int64(concurrency)),
	}
	logging.Debug("Scheduler registered kind %s (concurrency %d)", kind, concurrency)
}

// Signature returns the stable identity of a job.
func Signature(kind string, p Payload) string {
	// Map keys are sorted by encoding/json, so equal payloads encode equally.
	data, err := json.Marshal(p)
	if err != nil {
		return kind + ":" + p.CacheKey
	}
	return kind + ":" + string(data)
}

// Run executes the job for (kind, p) or attaches to an identical job already
// in flight. Every caller sharing a signature receives the same entry or
// error. If ctx ends first, Run returns ctx.Err() and the job keeps running
// for the remaining callers.
func (s *Scheduler) Run(ctx context.Context, kind string, p Payload) (*cache.Entry, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	q, ok := s.queues[kind]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	sig := Signature(kind, p)
	s.waiters[sig]++
	attached := s.inflight[sig]
	// A new signature is counted under mu so Shutdown cannot miss it. The
	// group key is forgotten under mu too, keeping inflight and the group in
	// step: DoChan starts a call exactly when inflight[sig] was unset.
	if !attached {
		s.inflight[sig] = true
		s.jobs.Add(1)
	}
	ch := s.group.DoChan(sig, func() (interface{}, error) {
		defer s.jobs.Done()
		defer s.finish(sig)
		return s.execute(q, sig, p)
	})
	s.mu.Unlock()

	defer s.leave(sig)

	if attached {
		metrics.JobsDedupedTotal.WithLabelValues(kind).Inc()
		logging.Debug("Job %s attached to in-flight execution", sig)
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*cache.Entry), nil
	case <-ctx.Done():
		logging.Debug("Job waiter left before completion: %s", sig)
		return nil, ctx.Err()
	}
}

func (s *Scheduler) leave(sig string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiters[sig]--
	if s.waiters[sig] <= 0 {
		delete(s.waiters, sig)
	}
}

func (s *Scheduler) finish(sig string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, sig)
	s.group.Forget(sig)
}

// Waiters returns how many callers are currently waiting on sig.
func (s *Scheduler) Waiters(sig string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters[sig]
}

func (s *Scheduler) execute(q *queue, sig string, p Payload) (entry *cache.Entry, err error) {
	metrics.JobsInFlight.WithLabelValues(q.kind).Inc()
	defer metrics.JobsInFlight.WithLabelValues(q.kind).Dec()

	logging.Debug("Job queued: %s", sig)
	queued := time.Now()
	if err := q.sem.Acquire(s.ctx, 1); err != nil {
		return nil, ErrClosed
	}
	defer q.sem.Release(1)
	metrics.JobQueueWait.WithLabelValues(q.kind).Observe(time.Since(queued).Seconds())

	metrics.JobsInProgress.WithLabelValues(q.kind).Inc()
	defer metrics.JobsInProgress.WithLabelValues(q.kind).Dec()

	logging.Info("Job started: %s", sig)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}

		metrics.JobDuration.WithLabelValues(q.kind).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.JobsTotal.WithLabelValues(q.kind, "error").Inc()
			logging.Error("Job failed after %v: %s: %v", time.Since(start), sig, err)
			return
		}
		metrics.JobsTotal.WithLabelValues(q.kind, "success").Inc()
		logging.Info("Job done in %v: %s", time.Since(start), sig)
	}()

	entry, err = q.task(s.ctx, p)
	if err == nil && entry == nil {
		err = errors.New("task produced no output")
	}
	return entry, err
}

// Shutdown stops accepting jobs and waits for executing ones. When ctx
// expires, running tasks see their context cancelled.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}
