// Package scheduler runs the fetch/select/claim/dispatch/report loop
// that feeds claimed jobs to the engine execution units.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/ellipsesearch/visibility-worker/internal/domain"
	"github.com/ellipsesearch/visibility-worker/internal/logger"
	"github.com/ellipsesearch/visibility-worker/internal/platform"
)

// Defaults for the loop.
const (
	DefaultPollInterval         = 10 * time.Second
	DefaultFetchLimit           = 10
	DefaultMaxParallel          = 4
	DefaultMaxConsecutiveErrors = 5
	DefaultErrorBackoff         = 60 * time.Second
)

// JobSource is the queue-facing surface of the platform client.
type JobSource interface {
	FetchPending(ctx context.Context, limit int, engines []string) ([]domain.Job, error)
	Claim(ctx context.Context, jobIDs []string) error
	Complete(ctx context.Context, job domain.Job, result domain.JobResult) error
	PatchStatus(ctx context.Context, jobID, engine string, success bool, errMsg string) error
}

// Dispatcher runs a batch of jobs and returns one result per job.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobs []domain.Job) []domain.JobResult
}

// Cooldowns is the tracker surface the loop needs: readiness filtering
// before selection and outcome recording after dispatch. Recording
// happens at the report step so that the terminal result per job,
// including a failure synthesized for a timed-out unit, is what the
// tracker sees.
type Cooldowns interface {
	ReadyEngines(engines []string) []string
	Record(engine string, success bool)
}

// Pacing is the policy surface: pauses between cycles and outcome
// feedback into the backoff level.
type Pacing interface {
	ShouldTakeBreak() (time.Duration, bool)
	NoteOutcome(success bool)
}

// ResultSink receives every terminal result, e.g. the JSON archive. Nil
// sinks are allowed.
type ResultSink interface {
	Append(result domain.JobResult)
}

// Config holds loop settings.
type Config struct {
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	FetchLimit           int           `mapstructure:"fetch_limit"`
	MaxParallel          int           `mapstructure:"max_parallel"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors"`
	ErrorBackoff         time.Duration `mapstructure:"error_backoff"`
	Engines              []string      `mapstructure:"engines"`
	EngineOrder          []string      `mapstructure:"engine_order"`
}

// NewConfig returns loop defaults.
func NewConfig() *Config {
	return &Config{
		PollInterval:         DefaultPollInterval,
		FetchLimit:           DefaultFetchLimit,
		MaxParallel:          DefaultMaxParallel,
		MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
		ErrorBackoff:         DefaultErrorBackoff,
		Engines:              append([]string{}, DefaultEngineOrder...),
		EngineOrder:          append([]string{}, DefaultEngineOrder...),
	}
}

// Scheduler owns the main loop.
type Scheduler struct {
	config     *Config
	source     JobSource
	dispatcher Dispatcher
	cooldowns  Cooldowns
	pacing     Pacing
	sink       ResultSink
	stats      *Stats
	logger     logger.Interface

	consecutiveErrors int
	sleep             func(ctx context.Context, d time.Duration) error
}

// New creates a scheduler.
func New(cfg *Config, source JobSource, dispatcher Dispatcher, cooldowns Cooldowns, pacing Pacing, sink ResultSink, stats *Stats, log logger.Interface) *Scheduler {
	return &Scheduler{
		config:     cfg,
		source:     source,
		dispatcher: dispatcher,
		cooldowns:  cooldowns,
		pacing:     pacing,
		sink:       sink,
		stats:      stats,
		logger:     log.WithComponent("scheduler"),
		sleep:      sleepCtx,
	}
}

// Stats exposes the counters for the heartbeat and status endpoint.
func (s *Scheduler) Stats() *Stats { return s.stats }

// Run drives the loop until the context is cancelled. Platform trouble
// never stops the loop; repeated failures only slow it down.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting",
		"poll_interval", s.config.PollInterval,
		"max_parallel", s.config.MaxParallel,
		"engines", s.config.Engines,
	)

	for {
		if err := s.cycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.logger.Info("scheduler stopping", "reason", ctx.Err())
				return nil
			}

			s.consecutiveErrors++
			s.logger.Error("cycle failed",
				"error", err,
				"consecutive_errors", s.consecutiveErrors,
			)
			if s.consecutiveErrors >= s.config.MaxConsecutiveErrors {
				s.logger.Warn("too many consecutive failures, backing off",
					"backoff", s.config.ErrorBackoff,
				)
				if err := s.sleep(ctx, s.config.ErrorBackoff); err != nil {
					return nil
				}
				s.consecutiveErrors = 0
			}
		} else {
			s.consecutiveErrors = 0
		}

		s.stats.RecordCycle()
		if err := s.sleep(ctx, s.config.PollInterval); err != nil {
			return nil
		}
	}
}

// cycle executes one fetch/select/claim/dispatch/report round.
func (s *Scheduler) cycle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if pause, take := s.pacing.ShouldTakeBreak(); take {
		s.logger.Info("taking a break", "duration", pause)
		if err := s.sleep(ctx, pause); err != nil {
			return err
		}
	}

	jobs, err := s.source.FetchPending(ctx, s.config.FetchLimit, s.config.Engines)
	if err != nil {
		s.stats.RecordFetchFailure()
		return err
	}
	if len(jobs) == 0 {
		s.logger.Debug("queue empty")
		return nil
	}

	ready := s.cooldowns.ReadyEngines(s.config.Engines)
	batch := selectBatch(jobs, ready, s.config.EngineOrder, s.config.MaxParallel)
	if len(batch) == 0 {
		s.logger.Debug("no dispatchable jobs",
			"pending", len(jobs),
			"ready_engines", ready,
		)
		return nil
	}

	ids := make([]string, len(batch))
	engines := make([]string, len(batch))
	for i, job := range batch {
		ids[i] = job.ID
		engines[i] = job.Engine
	}

	if err := s.source.Claim(ctx, ids); err != nil {
		// Another worker won the race; the batch is simply not ours.
		if errors.Is(err, platform.ErrClaimRefused) {
			s.logger.Info("claim refused, dropping batch", "jobs", ids)
			return nil
		}
		return err
	}

	s.logger.Info("dispatching batch", "jobs", ids, "engines", engines)
	s.stats.RecordBatch()

	results := s.dispatcher.Dispatch(ctx, batch)
	s.report(ctx, batch, results)
	return ctx.Err()
}

// report feeds each terminal result into the trackers and delivers the
// non-skipped ones to the platform. Skipped duplicates are counted
// locally and never reported: the queue row stays pending for another
// worker or a later cycle, and the engine was never touched, so the
// trackers stay untouched too.
func (s *Scheduler) report(ctx context.Context, batch []domain.Job, results []domain.JobResult) {
	for i, result := range results {
		job := batch[i]
		s.stats.RecordResult(result.Success, result.Skipped)
		if s.sink != nil {
			s.sink.Append(result)
		}

		if result.Skipped {
			s.logger.Info("result skipped locally", "job_id", job.ID)
			continue
		}

		s.cooldowns.Record(job.Engine, result.Success)
		s.pacing.NoteOutcome(result.Success)

		if err := s.source.Complete(ctx, job, result); err != nil {
			s.logger.Error("result ingest failed", "job_id", job.ID, "error", err)
			// Still patch the queue row so the job is not stuck
			// in-flight forever.
			if perr := s.source.PatchStatus(ctx, job.ID, job.Engine, false, result.ErrorMessage); perr != nil {
				s.logger.Warn("status patch failed", "job_id", job.ID, "error", perr)
			}
			continue
		}

		errMsg := ""
		if !result.Success {
			errMsg = result.ErrorMessage
		}
		if err := s.source.PatchStatus(ctx, job.ID, job.Engine, result.Success, errMsg); err != nil {
			s.logger.Warn("status patch failed", "job_id", job.ID, "error", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
