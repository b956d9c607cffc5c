package workflow

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrPoolSaturated = errors.New("run admission queue is full")
var ErrPoolClosed = errors.New("worker pool is shut down")

// Pool is a bounded worker pool with an explicit run-admission queue.
// Each job receives a context derived from the pool's; Shutdown cancels
// in-flight jobs and waits for the workers to drain.
type Pool struct {
	logger *logrus.Logger

	jobs   chan func(ctx context.Context)
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func NewPool(workers, queueDepth int, logger *logrus.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = 1
	}
	p := &Pool{
		logger: logger,
		jobs:   make(chan func(ctx context.Context), queueDepth),
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	return p
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			job(ctx)
		}
	}
}

// Submit admits a job without blocking; a saturated queue is reported to
// the caller instead of spawning an unbounded goroutine.
func (p *Pool) Submit(job func(ctx context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrPoolSaturated
	}
}

// Shutdown cancels running jobs and waits for the workers to exit.
// Queued jobs that have not started are discarded.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	if p.logger != nil {
		p.logger.Debug("worker pool drained")
	}
}
