// Package dispatch implements a thread-safe pool of shard work items
// handed out to workers and reclaimed from stragglers, grounded on the
// original workload pool: files matched against a glob pattern are
// split into (file, k, n) parts, handed out one at a time, and
// reassigned if a worker holds one far longer than the running
// average.
package dispatch

import (
	"sync"
	"time"
)

// WorkItem names one file part a worker should read.
type WorkItem struct {
	File      string
	Format    string
	PartK     int
	PartN     int
	BatchSize int
}

type assignment struct {
	item      WorkItem
	worker    string
	assignedAt time.Time
}

// Pool is a thread-safe work-item queue with straggler reassignment.
// The zero value is not usable; construct with NewPool.
type Pool struct {
	mu         sync.Mutex
	remain     []WorkItem
	assigned   []assignment
	durations  []time.Duration
	numFinished int
	lease      time.Duration
}

// NewPool creates an empty pool. lease only switches straggler
// reassignment on or off: a lease of 0 or less disables it entirely,
// and any positive value enables ReclaimStragglers, whose threshold is
// derived from the mean completion time, not from lease itself.
func NewPool(lease time.Duration) *Pool {
	return &Pool{lease: lease}
}

// Add splits each of the given files into npart work items.
func (p *Pool) Add(files []string, format string, npart int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if npart < 1 {
		npart = 1
	}
	for _, f := range files {
		for k := 0; k < npart; k++ {
			p.remain = append(p.remain, WorkItem{File: f, Format: format, PartK: k, PartN: npart})
		}
	}
}

// Get hands out one work item to worker, or reports false when the
// pool is drained.
func (p *Pool) Get(worker string) (WorkItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.remain) == 0 {
		return WorkItem{}, false
	}
	item := p.remain[0]
	p.remain = p.remain[1:]
	p.assigned = append(p.assigned, assignment{item: item, worker: worker, assignedAt: time.Now()})
	return item, true
}

// Finish records that worker completed the item it last received.
func (p *Pool) Finish(worker string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.set(worker, true)
}

// Reset requeues the item worker was holding, e.g. after it dies.
func (p *Pool) Reset(worker string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.set(worker, false)
}

func (p *Pool) set(worker string, done bool) {
	kept := p.assigned[:0]
	for _, a := range p.assigned {
		if a.worker != worker {
			kept = append(kept, a)
			continue
		}
		if done {
			p.durations = append(p.durations, time.Since(a.assignedAt))
			p.numFinished++
		} else {
			p.remain = append([]WorkItem{a.item}, p.remain...)
		}
	}
	p.assigned = kept
}

// IsFinished reports whether there is no remaining or in-flight work.
func (p *Pool) IsFinished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.remain) == 0 && len(p.assigned) == 0
}

// NumFinished returns how many items have completed.
func (p *Pool) NumFinished() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numFinished
}

// NumAssigned returns how many items are currently in flight.
func (p *Pool) NumAssigned() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.assigned)
}

// ReclaimStragglers requeues any in-flight item held more than 3x the
// running mean completion time. Call it periodically from a
// supervisor loop; it is a no-op until at least 10 items have
// finished, same as the pool it's grounded on.
func (p *Pool) ReclaimStragglers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lease <= 0 || len(p.durations) < 10 {
		return
	}
	var mean time.Duration
	for _, d := range p.durations {
		mean += d
	}
	mean /= time.Duration(len(p.durations))

	now := time.Now()
	kept := p.assigned[:0]
	for _, a := range p.assigned {
		if now.Sub(a.assignedAt) > mean*3 {
			p.remain = append([]WorkItem{a.item}, p.remain...)
			continue
		}
		kept = append(kept, a)
	}
	p.assigned = kept
}
