package parallel

import (
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_Create(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		want    int
	}{
		{"explicit", 4, 4},
		{"zero", 0, runtime.GOMAXPROCS(0)},
		{"negative", -5, runtime.GOMAXPROCS(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(tt.workers)
			defer pool.Close()
			if pool.Workers() != tt.want {
				t.Errorf("Workers() = %d, want %d", pool.Workers(), tt.want)
			}
			if !pool.IsRunning() {
				t.Error("pool should be running after creation")
			}
		})
	}
}

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	tasks := make([]Task, 100)
	for i := range tasks {
		tasks[i] = func() error {
			counter.Add(1)
			return nil
		}
	}
	errs := pool.ExecuteAll(tasks)
	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
	for i, err := range errs {
		if err != nil {
			t.Errorf("task %d: %v", i, err)
		}
	}
}

func TestWorkerPool_ExecuteAllErrorsByIndex(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Close()

	errBoom := errors.New("boom")
	tasks := []Task{
		func() error { return nil },
		func() error { return errBoom },
		func() error { panic("kaput") },
		func() error { return nil },
	}
	errs := pool.ExecuteAll(tasks)
	if errs[0] != nil || errs[3] != nil {
		t.Errorf("healthy tasks failed: %v, %v", errs[0], errs[3])
	}
	if !errors.Is(errs[1], errBoom) {
		t.Errorf("errs[1] = %v, want errBoom", errs[1])
	}
	if !errors.Is(errs[2], ErrPanic) {
		t.Errorf("errs[2] = %v, want ErrPanic", errs[2])
	}
}

func TestWorkerPool_ExecuteAllRunsConcurrently(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	// Each task waits for the other; a serial pool would deadlock.
	a, b := make(chan struct{}), make(chan struct{})
	tasks := []Task{
		func() error { close(a); <-b; return nil },
		func() error { close(b); <-a; return nil },
	}
	done := make(chan struct{})
	go func() {
		pool.ExecuteAll(tasks)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not run concurrently")
	}
}

func TestWorkerPool_ExecuteAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close() // idempotent

	if pool.IsRunning() {
		t.Error("pool running after Close")
	}
	var counter atomic.Int64
	tasks := []Task{
		func() error { counter.Add(1); return nil },
		func() error { counter.Add(1); return nil },
	}
	pool.ExecuteAll(tasks)
	if counter.Load() != 2 {
		t.Errorf("counter = %d, want 2 (inline after Close)", counter.Load())
	}
}

func TestWorkerPool_Empty(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()
	if errs := pool.ExecuteAll(nil); len(errs) != 0 {
		t.Errorf("ExecuteAll(nil) = %v", errs)
	}
}
