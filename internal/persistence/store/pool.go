package store

import (
	"sync"
	"sync/atomic"
)

// pool runs persistence jobs on a fixed set of background goroutines.
type pool struct {
	mu     sync.RWMutex
	jobs   chan func()
	wg     sync.WaitGroup
	closed bool

	dropped atomic.Uint64
}

type PoolStats struct {
	Workers       int
	QueueDepth    int
	QueueCapacity int
	DropTotal     uint64
}

func newPool(workers, queue int) *pool {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 1024
	}
	p := &pool{jobs: make(chan func(), queue)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for fn := range p.jobs {
				fn()
			}
		}()
	}
	return p
}

// submit enqueues fn without blocking the caller. It returns ErrClosed or ErrBusy
// when the job was not accepted.
func (p *pool) submit(fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- fn:
		return nil
	default:
		p.dropped.Add(1)
		return ErrBusy
	}
}

// close drains queued jobs and waits for the workers to exit.
func (p *pool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *pool) stats(workers int) PoolStats {
	return PoolStats{
		Workers:       workers,
		QueueDepth:    len(p.jobs),
		QueueCapacity: cap(p.jobs),
		DropTotal:     p.dropped.Load(),
	}
}
