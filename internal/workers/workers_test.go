package workers

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCount(t *testing.T) {
	available := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		minExpect  int
		maxExpect  int
	}{
		{"CPU-bound", 1.0, 0, 1, available},
		{"I/O-bound", 2.0, 0, 1, available * 2},
		{"limit lower than calculated", 2.0, 2, 1, 2},
		{"very low multiplier", 0.01, 0, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Count(tt.multiplier, tt.limit)
			if got < tt.minExpect || got > tt.maxExpect {
				t.Errorf("Count(%v, %d) = %d, want in [%d, %d]", tt.multiplier, tt.limit, got, tt.minExpect, tt.maxExpect)
			}
		})
	}
}

func TestForCPUAndIO(t *testing.T) {
	if ForIO(0) < ForCPU(0) {
		t.Errorf("ForIO (%d) should be >= ForCPU (%d)", ForIO(0), ForCPU(0))
	}
	if got := ForCPU(1); got != 1 {
		t.Errorf("ForCPU(1) = %d, want 1", got)
	}
}

func TestPoolRunsTasks(t *testing.T) {
	p := NewPool(4, 16)
	defer p.Shutdown(context.Background())

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		if !p.Submit("inc", func(context.Context) error {
			count.Add(1)
			return nil
		}) {
			t.Fatal("Submit rejected a task with free queue space")
		}
	}

	p.Wait()
	if got := count.Load(); got != 10 {
		t.Errorf("ran %d tasks, want 10", got)
	}
}

func TestPoolSurvivesFailuresAndPanics(t *testing.T) {
	p := NewPool(1, 4)
	defer p.Shutdown(context.Background())

	var ran atomic.Bool
	p.Submit("fail", func(context.Context) error { return errors.New("boom") })
	p.Submit("panic", func(context.Context) error { panic("kaboom") })
	p.Submit("ok", func(context.Context) error {
		ran.Store(true)
		return nil
	})

	p.Wait()
	if !ran.Load() {
		t.Error("task after a failure and a panic did not run")
	}
}

func TestPoolDropsWhenFull(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Shutdown(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	p.Submit("block", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	if !p.Submit("queued", func(context.Context) error { return nil }) {
		t.Fatal("second task should fit in the queue")
	}
	if p.Submit("overflow", func(context.Context) error { return nil }) {
		t.Error("third task should be dropped")
	}

	close(release)
	p.Wait()
}

func TestPoolShutdownDrains(t *testing.T) {
	p := NewPool(2, 8)

	var mu sync.Mutex
	done := 0
	for i := 0; i < 5; i++ {
		p.Submit("slow", func(context.Context) error {
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			done++
			mu.Unlock()
			return nil
		})
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if done != 5 {
		t.Errorf("drained %d tasks, want 5", done)
	}
	if p.Submit("late", func(context.Context) error { return nil }) {
		t.Error("Submit after Shutdown should fail")
	}
	if err := p.Shutdown(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("second Shutdown = %v, want ErrPoolClosed", err)
	}
}

func TestPoolShutdownDeadlineCancelsTasks(t *testing.T) {
	p := NewPool(1, 1)

	cancelled := make(chan struct{})
	started := make(chan struct{})
	p.Submit("stuck", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := p.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown = %v, want deadline exceeded", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Error("task context was not cancelled")
	}
}
