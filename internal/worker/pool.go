package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ellipsesearch/visibility-worker/internal/domain"
	"github.com/ellipsesearch/visibility-worker/internal/logger"
)

// DefaultJobTimeout bounds a single job end to end, including pacing
// waits and the engine's own response time.
const DefaultJobTimeout = 300 * time.Second

// Pool owns one execution unit per engine and runs dispatch rounds. A
// round is at most one job per engine, all in flight concurrently (or one
// at a time in sequential mode).
type Pool struct {
	mu         sync.Mutex
	units      map[string]*Unit
	jobTimeout time.Duration
	sequential bool
	logger     logger.Interface
}

// NewPool creates a pool over the given units, keyed by engine.
func NewPool(units map[string]*Unit, jobTimeout time.Duration, sequential bool, log logger.Interface) *Pool {
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}
	return &Pool{
		units:      units,
		jobTimeout: jobTimeout,
		sequential: sequential,
		logger:     log.WithComponent("pool"),
	}
}

// Unit returns the unit for an engine, if the pool has one.
func (p *Pool) Unit(engine string) (*Unit, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.units[engine]
	return u, ok
}

// Engines lists the engines this pool can serve.
func (p *Pool) Engines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	engines := make([]string, 0, len(p.units))
	for engine := range p.units {
		engines = append(engines, engine)
	}
	return engines
}

// States reports each unit's current state for the status endpoint.
func (p *Pool) States() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	states := make(map[string]string, len(p.units))
	for engine, u := range p.units {
		states[engine] = u.StateName()
	}
	return states
}

// Dispatch runs one round: each job goes to its engine's unit, every
// execution is bounded by the job timeout, and exactly one result per job
// comes back. A job whose unit overruns the timeout yields a synthesized
// failure immediately; the unit is left to finish (or notice
// cancellation) on its own rather than being joined.
func (p *Pool) Dispatch(ctx context.Context, jobs []domain.Job) []domain.JobResult {
	if p.sequential {
		results := make([]domain.JobResult, 0, len(jobs))
		for _, job := range jobs {
			results = append(results, p.run(ctx, job))
		}
		return results
	}

	results := make([]domain.JobResult, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job domain.Job) {
			defer wg.Done()
			results[i] = p.run(ctx, job)
		}(i, job)
	}
	wg.Wait()
	return results
}

// run executes one job on its unit with the pool's timeout.
func (p *Pool) run(ctx context.Context, job domain.Job) domain.JobResult {
	startedAt := time.Now()

	unit, ok := p.Unit(job.Engine)
	if !ok {
		return domain.NewFailedResult(job, startedAt,
			fmt.Sprintf("no execution unit for engine %q", job.Engine))
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	done := make(chan domain.JobResult, 1)
	go func() {
		done <- unit.Execute(jobCtx, job)
	}()

	select {
	case result := <-done:
		return result
	case <-jobCtx.Done():
		if ctx.Err() != nil {
			return domain.NewFailedResult(job, startedAt, "worker shutting down")
		}
		p.logger.Warn("job timed out",
			"job_id", job.ID,
			"engine", job.Engine,
			"timeout", p.jobTimeout,
		)
		return domain.NewFailedResult(job, startedAt,
			fmt.Sprintf("job timed out after %s", p.jobTimeout))
	}
}

// Close releases every unit's engine session.
func (p *Pool) Close(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for engine, u := range p.units {
		if err := u.Close(ctx); err != nil {
			p.logger.Warn("closing session failed", "engine", engine, "error", err)
		}
	}
}
