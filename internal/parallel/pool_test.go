package parallel

import (
	"runtime"
	"sync/atomic"
	"testing"
)

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestWorkerPool_CreateZeroWorkers(t *testing.T) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	expected := runtime.GOMAXPROCS(0)
	if pool.Workers() != expected {
		t.Errorf("Workers() = %d, want %d (GOMAXPROCS)", pool.Workers(), expected)
	}
}

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	const numTasks = 100
	work := make([]Task, numTasks)
	for i := range work {
		work[i] = func(int) { counter.Add(1) }
	}
	if !pool.ExecuteAll(work) {
		t.Fatal("ExecuteAll on running pool returned false")
	}
	if counter.Load() != numTasks {
		t.Errorf("counter = %d, want %d", counter.Load(), numTasks)
	}
}

func TestWorkerPool_ExecuteNWorkerIDs(t *testing.T) {
	const workers = 3
	pool := NewWorkerPool(workers)
	defer pool.Close()

	const n = 64
	var seen [n]atomic.Int32
	var badWorker atomic.Bool
	pool.ExecuteN(n, func(worker, i int) {
		if worker < 0 || worker >= workers {
			badWorker.Store(true)
		}
		seen[i].Add(1)
	})
	if badWorker.Load() {
		t.Error("task received worker id out of range")
	}
	for i := range seen {
		if seen[i].Load() != 1 {
			t.Errorf("task %d ran %d times", i, seen[i].Load())
		}
	}
}

func TestWorkerPool_ExecuteEmpty(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()
	if !pool.ExecuteAll(nil) {
		t.Error("empty work should succeed")
	}
}

func TestWorkerPool_CloseIdempotent(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()
	if pool.IsRunning() {
		t.Error("Pool should not be running after Close")
	}
	ran := false
	if pool.ExecuteAll([]Task{func(int) { ran = true }}) {
		t.Error("ExecuteAll on closed pool should return false")
	}
	if ran {
		t.Error("work ran on closed pool")
	}
}
