package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultWorkers bounds the package-level pool.
const DefaultWorkers = 64

// Pool runs actions on a bounded set of worker goroutines.
type Pool struct {
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewPool creates a pool allowing at most workers concurrent actions.
func NewPool(workers int64, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		sem:    semaphore.NewWeighted(workers),
		logger: logger,
	}
}

var (
	defaultOnce sync.Once
	defaultPool *Pool
)

// Default returns the shared package-level pool.
func Default() *Pool {
	defaultOnce.Do(func() {
		defaultPool = NewPool(DefaultWorkers, nil)
	})
	return defaultPool
}

// RunBlocking runs action on a worker and returns once it has completed.
// Calling it from inside a pool action can deadlock when every worker is busy.
func (p *Pool) RunBlocking(action func()) {
	done := make(chan struct{})
	p.submit(action, done)
	<-done
}

// RunFireAndForget runs action on a worker without waiting for it.
func (p *Pool) RunFireAndForget(action func()) {
	p.submit(action, nil)
}

func (p *Pool) submit(action func(), done chan struct{}) {
	go func() {
		if done != nil {
			defer close(done)
		}

		// Background never cancels, so Acquire only returns once a slot is free.
		_ = p.sem.Acquire(context.Background(), 1)
		defer p.sem.Release(1)

		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("pool action panicked", "panic", r)
			}
		}()

		action()
	}()
}

// RunBlocking runs action on the default pool and waits for it.
func RunBlocking(action func()) {
	Default().RunBlocking(action)
}

// RunFireAndForget runs action on the default pool.
func RunFireAndForget(action func()) {
	Default().RunFireAndForget(action)
}
