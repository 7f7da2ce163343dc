// Package sched runs submitted work on a fixed set of workers under a
// selectable queueing discipline.
package sched

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrPoolClosed = errors.New("Pool is closed.")

// Policy selects the queue discipline fixed at pool construction.
type Policy int

const (
	// RoundRobin dequeues in strict arrival order.
	RoundRobin Policy = iota
	// ShortestJobFirst dequeues the task with the smallest caller-supplied
	// time estimate; ties break arbitrarily.
	ShortestJobFirst
)

// ParsePolicy maps the command-line spelling to a Policy.
func ParsePolicy(raw string) (Policy, error) {
	switch raw {
	case "rr", "round-robin":
		return RoundRobin, nil
	case "sjf", "shortest-job-first":
		return ShortestJobFirst, nil
	}
	return RoundRobin, fmt.Errorf("Unknown scheduling policy \"%v\".", raw)
}

func (p Policy) String() string {
	if p == ShortestJobFirst {
		return "sjf"
	}
	return "rr"
}

// Stats holds counters accumulated since pool construction.
type Stats struct {
	Processed     uint64
	AvgTaskMicros uint64
}

type task struct {
	fn       func()
	estimate uint32
	taskID   uint32
}

type taskHeap []*task

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].estimate < h[j].estimate }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(*task)) }

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Pool is a fixed-size worker pool. Workers block on the queue, execute one
// task to completion at a time, and record elapsed time into shared counters.
// Shutdown stops intake, lets the workers drain the queue, and joins them.
type Pool struct {
	lock sync.Mutex
	cond *sync.Cond

	policy Policy
	fifo   []*task
	sjf    taskHeap
	stop   bool

	workers sync.WaitGroup

	statsLock   sync.Mutex
	processed   uint64
	totalMicros uint64
}

// NewPool starts workers goroutines draining the queue of the given policy.
func NewPool(workers int, policy Policy) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{policy: policy}
	p.cond = sync.NewCond(&p.lock)

	p.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) queueEmpty() bool {
	if p.policy == ShortestJobFirst {
		return len(p.sjf) == 0
	}
	return len(p.fifo) == 0
}

func (p *Pool) dequeue() *task {
	if p.policy == ShortestJobFirst {
		return heap.Pop(&p.sjf).(*task)
	}
	t := p.fifo[0]
	p.fifo[0] = nil
	p.fifo = p.fifo[1:]
	return t
}

func (p *Pool) worker() {
	defer p.workers.Done()

	for {
		p.lock.Lock()
		for !p.stop && p.queueEmpty() {
			p.cond.Wait()
		}
		if p.stop && p.queueEmpty() {
			p.lock.Unlock()
			return
		}
		t := p.dequeue()
		p.lock.Unlock()

		start := time.Now()
		t.fn()
		elapsed := time.Since(start)

		p.statsLock.Lock()
		p.processed++
		p.totalMicros += uint64(elapsed / time.Microsecond)
		p.statsLock.Unlock()
	}
}

// Enqueue submits fn under the active discipline and wakes one idle worker.
// estimate only matters under ShortestJobFirst; taskID is carried for
// diagnostics. Rejected once Shutdown has begun.
func (p *Pool) Enqueue(fn func(), estimate uint32, taskID uint32) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.stop {
		return ErrPoolClosed
	}

	t := &task{fn: fn, estimate: estimate, taskID: taskID}
	if p.policy == ShortestJobFirst {
		heap.Push(&p.sjf, t)
	} else {
		p.fifo = append(p.fifo, t)
	}
	p.cond.Signal()
	return nil
}

// Shutdown stops intake, wakes every worker, and blocks until all queued
// tasks have finished and every worker has exited.
func (p *Pool) Shutdown() {
	p.lock.Lock()
	p.stop = true
	p.lock.Unlock()
	p.cond.Broadcast()

	p.workers.Wait()
}

// Stats reports tasks completed and their mean execution time.
func (p *Pool) Stats() Stats {
	p.statsLock.Lock()
	defer p.statsLock.Unlock()

	stats := Stats{Processed: p.processed}
	if p.processed > 0 {
		stats.AvgTaskMicros = p.totalMicros / p.processed
	}
	return stats
}
