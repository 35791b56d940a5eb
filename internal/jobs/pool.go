package jobs

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Pool runs generation units in their own goroutines while bounding how many
// execute at once. Go never blocks the caller; units wait for a slot inside
// their goroutine.
type Pool struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewPool creates a pool that allows at most concurrency units to run together.
func NewPool(concurrency int, logger zerolog.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(int64(concurrency)),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With().Str("component", "worker_pool").Logger(),
	}
}

// Go schedules run. When the pool is cancelled before run gets a slot, run is
// skipped and dropped, if non-nil, is called instead. Go returns false once
// Stop has been called.
func (p *Pool) Go(run func(ctx context.Context), dropped func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			if dropped != nil {
				dropped()
			}
			return
		}
		defer p.sem.Release(1)
		run(p.ctx)
	}()
	return true
}

// Stop refuses new work and waits for scheduled units. When ctx expires first
// the remaining units are cancelled and Stop returns ctx.Err() once they exit.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	p.logger.Info().Msg("worker pool stopping")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info().Msg("worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.Warn().Msg("worker pool shutdown timed out, cancelling active units")
		p.cancel()
		<-done
		return ctx.Err()
	}
}
