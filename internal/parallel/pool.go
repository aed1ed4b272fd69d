// Package parallel provides the worker pool used to rasterize fields over independent grid partitions.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Task is a unit of work. worker is the index of the goroutine running it in
// [0, Workers()), which lets tasks use per-worker scratch state without locking.
type Task func(worker int)

// WorkerPool is a pool of goroutines for parallel field evaluation.
//
// Each worker has its own queue. Workers steal work from other queues when
// their own is empty, which balances slabs of uneven evaluation cost.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan Task
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
// The pool starts immediately and workers begin waiting for work.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(8, workers*4)
	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan Task, workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan Task, queueSize)
	}
	p.running.Store(true)
	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	myQueue := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drainQueue(id, myQueue)
			return
		case work := <-myQueue:
			if work != nil {
				work(id)
			}
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen(id)
				continue
			}
			// No work anywhere, block on own queue.
			select {
			case <-p.done:
				p.drainQueue(id, myQueue)
				return
			case work := <-myQueue:
				if work != nil {
					work(id)
				}
			}
		}
	}
}

func (p *WorkerPool) drainQueue(id int, queue chan Task) {
	for {
		select {
		case work := <-queue:
			if work != nil {
				work(id)
			}
		default:
			return
		}
	}
}

// steal attempts to take work from another worker's queue. Returns nil if no work is available.
func (p *WorkerPool) steal(myID int) Task {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// ExecuteAll distributes work across workers and waits for all to complete.
// If the pool is closed, this is a no-op and false is returned.
func (p *WorkerPool) ExecuteAll(work []Task) bool {
	if len(work) == 0 {
		return true
	} else if !p.running.Load() {
		return false
	}
	var completionWG sync.WaitGroup
	completionWG.Add(len(work))
	for i, fn := range work {
		wrapped := func(worker int) {
			defer completionWG.Done()
			fn(worker)
		}
		select {
		case p.workQueues[i%p.workers] <- wrapped:
		case <-p.done:
			completionWG.Done()
		}
	}
	completionWG.Wait()
	return true
}

// ExecuteN runs fn for every i in [0, n) and waits for completion.
func (p *WorkerPool) ExecuteN(n int, fn func(worker, i int)) bool {
	work := make([]Task, n)
	for i := range work {
		work[i] = func(worker int) { fn(worker, i) }
	}
	return p.ExecuteAll(work)
}

// Close gracefully shuts down the pool. Queued work is completed before
// workers exit. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int { return p.workers }

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool { return p.running.Load() }
