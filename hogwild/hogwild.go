// Package hogwild dispatches parsed examples to a pool of workers that
// share one regressor's weight tables without locking.
package hogwild

import (
	"sync"

	"github.com/happyhackingspace/ffml/engine"
)

// Job is one unit of work: a parsed example plus an optional channel to
// receive its prediction. Result is left nil when the caller doesn't need
// the value back (pure training throughput).
type Job struct {
	Example *engine.Example
	Result  chan<- float32
}

// Dispatcher is the optimizer-erased view of a Pool: callers that pick an
// optimizer at runtime hold this instead of a Pool[O] with a concrete O.
type Dispatcher interface {
	Submit(Job)
	Close()
}

// Pool is a bounded-channel producer -> worker-pool dispatcher. Each
// worker owns a private port buffer (never shared); all workers share the
// regressor's weight tables lock-free, tolerating the small, sparse write
// races that design is built around.
type Pool[O engine.Optimizer] struct {
	regressor *engine.Regressor[O]
	jobs      chan Job
	done      chan struct{}
}

// NewPool starts numWorkers goroutines reading from a channel of the given
// depth and returns immediately; call Close for cooperative shutdown.
func NewPool[O engine.Optimizer](regressor *engine.Regressor[O], numWorkers, channelDepth int) *Pool[O] {
	p := &Pool[O]{
		regressor: regressor,
		jobs:      make(chan Job, channelDepth),
		done:      make(chan struct{}),
	}
	go p.run(numWorkers)
	return p
}

func (p *Pool[O]) run(numWorkers int) {
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			p.worker()
		}()
	}
	wg.Wait()
	close(p.done)
}

// worker processes jobs strictly one at a time, in the order it receives
// them — only the channel receive itself suspends it.
func (p *Pool[O]) worker() {
	pb := p.regressor.NewWorkerBuffer()
	for job := range p.jobs {
		prediction := p.regressor.Learn(job.Example, pb)
		if job.Result != nil {
			job.Result <- prediction
		}
	}
}

// Submit enqueues a job, blocking while the channel is full — this is the
// natural back-pressure mechanism for a bounded dispatch channel.
func (p *Pool[O]) Submit(job Job) { p.jobs <- job }

// Close stops accepting new work and blocks until every worker has drained
// its in-flight example and exited. There is no per-example timeout.
func (p *Pool[O]) Close() {
	close(p.jobs)
	<-p.done
}
