// Package worker executes claimed jobs against engine sessions. Each
// engine gets one execution unit that owns its browser session
// exclusively. Units only produce results; outcome feedback into the
// cooldown and pacing trackers happens at the reporting step, so the
// result that reaches the platform (including a synthesized timeout
// failure) is exactly what the trackers see.
package worker

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/ellipsesearch/visibility-worker/internal/citation"
	"github.com/ellipsesearch/visibility-worker/internal/dedup"
	"github.com/ellipsesearch/visibility-worker/internal/domain"
	"github.com/ellipsesearch/visibility-worker/internal/logger"
	"github.com/ellipsesearch/visibility-worker/internal/pacing"
)

// Unit states.
const (
	StateIdle int32 = iota
	StateWaiting
	StateRunning
)

// Extra pause before near-duplicate prompts, drawn uniform from this
// range.
const (
	similarDelayMin = 15 * time.Second
	similarDelayMax = 30 * time.Second
)

// Pacer is the pacing surface a unit needs.
type Pacer interface {
	Wait(ctx context.Context, engine string) (time.Duration, error)
	Profile() pacing.SessionProfile
}

// Deduper checks prompts for recent repeats.
type Deduper interface {
	Check(prompt, engine string) dedup.CheckResult
}

// Unit executes jobs for exactly one engine. Not safe for concurrent
// Execute calls; the pool guarantees one in-flight job per unit.
type Unit struct {
	engine  string
	adapter Adapter
	pacer   Pacer
	deduper Deduper
	logger  logger.Interface

	state       atomic.Int32
	sessionOpen atomic.Bool
	executed    atomic.Int64
	skipped     atomic.Int64

	rng *rand.Rand
	now func() time.Time
}

// NewUnit creates the execution unit for an engine.
func NewUnit(engine string, adapter Adapter, pacer Pacer, deduper Deduper, log logger.Interface) *Unit {
	return &Unit{
		engine:  engine,
		adapter: adapter,
		pacer:   pacer,
		deduper: deduper,
		logger:  log.WithComponent("unit").WithEngine(engine),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
}

// Engine returns the engine this unit drives.
func (u *Unit) Engine() string { return u.engine }

// State returns the unit's current state constant.
func (u *Unit) State() int32 { return u.state.Load() }

// StateName returns a human-readable state for status reporting.
func (u *Unit) StateName() string {
	switch u.state.Load() {
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	default:
		return "idle"
	}
}

// Counters returns executed and skipped job counts.
func (u *Unit) Counters() (executed, skipped int64) {
	return u.executed.Load(), u.skipped.Load()
}

// Execute runs one job to completion and returns its result. The result
// always carries a terminal verdict: success, failure, or skipped. Only
// ctx cancellation short-circuits without touching the engine.
func (u *Unit) Execute(ctx context.Context, job domain.Job) domain.JobResult {
	startedAt := u.now()
	u.state.Store(StateWaiting)
	defer u.state.Store(StateIdle)

	// Duplicate check happens before any waiting so skipped jobs cost
	// nothing.
	check := u.deduper.Check(job.PromptText, u.engine)
	if check.Recommendation == dedup.RecommendSkip {
		u.skipped.Add(1)
		u.logger.Info("skipping duplicate prompt",
			"job_id", job.ID,
			"similarity", check.Similarity,
		)
		return domain.JobResult{
			JobID:     job.ID,
			Engine:    u.engine,
			Skipped:   true,
			StartedAt: startedAt,
			EndedAt:   u.now(),
		}
	}

	if check.Recommendation == dedup.RecommendAddDelay {
		extra := similarDelayMin + time.Duration(u.rng.Int63n(int64(similarDelayMax-similarDelayMin)))
		u.logger.Debug("near-duplicate prompt, adding delay",
			"job_id", job.ID,
			"similarity", check.Similarity,
			"extra_delay", extra,
		)
		if err := sleepCtx(ctx, extra); err != nil {
			return domain.NewFailedResult(job, startedAt, "cancelled before dispatch")
		}
	}

	if _, err := u.pacer.Wait(ctx, u.engine); err != nil {
		return domain.NewFailedResult(job, startedAt, "cancelled before dispatch")
	}

	if err := u.ensureSession(ctx); err != nil {
		return domain.NewFailedResult(job, startedAt, fmt.Sprintf("open session: %v", err))
	}

	u.state.Store(StateRunning)
	u.logger.Info("running prompt",
		"job_id", job.ID,
		"priority", job.Priority.String(),
	)

	resp, err := u.adapter.RunPrompt(ctx, job)
	endedAt := u.now()
	u.executed.Add(1)

	if err != nil {
		u.logger.Error("prompt failed", "job_id", job.ID, "error", err)
		return domain.NewFailedResult(job, startedAt, err.Error())
	}

	result := domain.JobResult{
		JobID:        job.ID,
		Engine:       u.engine,
		Success:      resp.Success,
		Text:         resp.Text,
		HTML:         resp.HTML,
		Sources:      resp.Sources,
		ErrorMessage: resp.ErrorMessage,
		StartedAt:    startedAt,
		EndedAt:      endedAt,
		Duration:     endedAt.Sub(startedAt),
	}

	// Merge adapter-captured sources with what we can extract from the
	// response ourselves; adapters for some engines only see the cards,
	// not inline links.
	result.Sources = citation.MergeSources(result.Sources, citation.Extract(resp.HTML, resp.Text))
	result.CitationCount = len(result.Sources)

	u.logger.Info("prompt finished",
		"job_id", job.ID,
		"success", result.Success,
		"citations", result.CitationCount,
		"duration", result.Duration,
	)
	return result
}

// Close releases the unit's engine session.
func (u *Unit) Close(ctx context.Context) error {
	if !u.sessionOpen.Swap(false) {
		return nil
	}
	return u.adapter.CloseSession(ctx)
}

func (u *Unit) ensureSession(ctx context.Context) error {
	if u.sessionOpen.Load() {
		return nil
	}
	if err := u.adapter.OpenSession(ctx, u.pacer.Profile()); err != nil {
		return err
	}
	u.sessionOpen.Store(true)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
