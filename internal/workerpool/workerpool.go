// Package workerpool is a small bounded goroutine pool for work that
// must not run on a session's own event loop: the login-time Pull and
// group fan-out above the configured member-count threshold.
package workerpool

import "sync"

// Pool runs submitted jobs on a fixed number of worker goroutines
// draining a single job channel — the same shape as the teacher's
// Hub.broadcast loop, generalized from one goroutine to N.
type Pool struct {
	jobs chan func()
	wg   sync.WaitGroup
}

// New starts a pool with the given worker count and job queue depth.
func New(workers, queueDepth int) *Pool {
	p := &Pool{jobs: make(chan func(), queueDepth)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
	}
}

// Submit enqueues job to run on a worker goroutine. It blocks if the
// queue is full, applying backpressure to the caller.
func (p *Pool) Submit(job func()) {
	p.jobs <- job
}

// Shutdown closes the job queue and waits for in-flight jobs to drain.
func (p *Pool) Shutdown() {
	close(p.jobs)
	p.wg.Wait()
}
