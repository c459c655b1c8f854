// Package pacing computes human-plausible delays between automation
// requests: gaussian jitter, exponential backoff, burst damping,
// time-of-day awareness, and occasional thinking pauses.
package pacing

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ellipsesearch/visibility-worker/internal/logger"
)

const (
	// historyCap bounds the request-history ring.
	historyCap = 100

	// maxBackoffLevel caps the exponential backoff exponent.
	maxBackoffLevel = 5.0
	// backoffDecayStep is subtracted from the level on success.
	backoffDecayStep = 0.5

	// Burst damping adds a uniform delay in [burstDelayMin, burstDelayMax].
	burstDelayMin = 30 * time.Second
	burstDelayMax = 60 * time.Second

	// nightMultiplier doubles delays during the night band.
	nightMultiplier = 2

	// Cooldown gap extension jitter.
	cooldownJitterMin = 2 * time.Second
	cooldownJitterMax = 5 * time.Second

	// Thinking pauses: probability and bounds.
	thinkingPauseChance = 0.2
	thinkingPauseMin    = 5 * time.Second
	thinkingPauseMax    = 15 * time.Second

	// Session breaks.
	breakEveryNJobs     = 10
	jobBreakMin         = 60 * time.Second
	jobBreakMax         = 120 * time.Second
	longSessionDuration = 30 * time.Minute
	longSessionChance   = 0.1
	longBreakMin        = 30 * time.Second
	longBreakMax        = 90 * time.Second

	// Interruptible sleeps are chunked so shutdown is responsive.
	sleepChunkMin = 1 * time.Second
	sleepChunkMax = 3 * time.Second
)

// CooldownSource supplies the per-engine remaining cooldown used for the
// minimum-spacing extension step.
type CooldownSource interface {
	Remaining(engine string) time.Duration
}

// Policy computes and enforces the wait before each request. Request
// history and backoff level are shared across all engines; access is
// serialized by one mutex.
type Policy struct {
	config    *Config
	cooldowns CooldownSource
	logger    logger.Interface

	mu           sync.Mutex
	history      []time.Time
	backoffLevel float64
	profile      SessionProfile
	sessionJobs  int
	sessionStart time.Time

	rng *rand.Rand
	now func() time.Time
}

// NewPolicy creates a pacing policy with a fresh session profile.
func NewPolicy(cfg *Config, cooldowns CooldownSource, log logger.Interface) *Policy {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	p := &Policy{
		config:       cfg,
		cooldowns:    cooldowns,
		logger:       log,
		history:      make([]time.Time, 0, historyCap),
		profile:      NewSessionProfile(rng),
		sessionStart: time.Now(),
		rng:          rng,
		now:          time.Now,
	}
	log.Info("pacing policy initialized",
		"session_id", p.profile.SessionID,
		"min_delay", cfg.MinDelay,
		"max_delay", cfg.MaxDelay,
	)
	return p
}

// Profile returns the current session profile.
func (p *Policy) Profile() SessionProfile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profile
}

// RotateSession generates a new session profile and resets per-session
// counters and the backoff level. Called between batches or on schedule.
func (p *Policy) RotateSession() SessionProfile {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.profile = NewSessionProfile(p.rng)
	p.sessionJobs = 0
	p.sessionStart = p.now()
	p.backoffLevel = 0

	p.logger.Info("session profile rotated", "session_id", p.profile.SessionID)
	return p.profile
}

// Delay computes the wait before the next request to the given engine.
// It never sleeps; Wait does. The result is bounded: at most
// backoff-capped base delay plus burst, cooldown, and thinking additives,
// and never negative.
func (p *Policy) Delay(engine string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()

	// Gaussian base delay, clamped to [min, max]. A gaussian draw looks
	// more natural than uniform spacing.
	mean := float64(p.config.MinDelay+p.config.MaxDelay) / 2
	stddev := float64(p.config.MaxDelay-p.config.MinDelay) / 4
	delay := time.Duration(p.rng.NormFloat64()*stddev + mean)
	if delay < p.config.MinDelay {
		delay = p.config.MinDelay
	}
	if delay > p.config.MaxDelay {
		delay = p.config.MaxDelay
	}

	// Exponential backoff after failures, capped.
	if p.backoffLevel > 0 {
		multiplier := math.Pow(p.config.BackoffBase, p.backoffLevel)
		scaled := time.Duration(float64(delay) * multiplier)
		if scaled > p.config.MaxBackoff {
			scaled = p.config.MaxBackoff
		}
		delay = scaled
		p.logger.Debug("backoff applied",
			"level", p.backoffLevel,
			"delay", delay,
		)
	}

	// Burst protection across all engines.
	if p.countRecentLocked(now) >= p.config.MaxRequestsPerWindow {
		burst := p.uniformDurationLocked(burstDelayMin, burstDelayMax)
		if burst > delay {
			delay = burst
		}
		p.logger.Warn("burst ceiling reached, damping",
			"window", p.config.BurstWindow,
			"delay", delay,
		)
	}

	// Night hours look suspicious for sustained activity; slow down.
	if p.config.ReduceNightActivity {
		hour := now.Hour()
		if hour >= p.config.NightStartHour && hour < p.config.NightEndHour {
			delay *= nightMultiplier
		}
	}

	// Extend to cover the engine's remaining cooldown, plus jitter so the
	// spacing is not exactly the configured minimum.
	if p.cooldowns != nil {
		if remaining := p.cooldowns.Remaining(engine); remaining > 0 {
			extended := remaining + p.uniformDurationLocked(cooldownJitterMin, cooldownJitterMax)
			if extended > delay {
				delay = extended
			}
		}
	}

	// Occasional longer pause, as if re-reading the previous answer.
	if p.config.ThinkingPauses && p.rng.Float64() < thinkingPauseChance {
		delay += p.uniformDurationLocked(thinkingPauseMin, thinkingPauseMax)
	}

	return delay
}

// Wait blocks for the computed delay before a request to the engine may
// fire. The sleep is chunked so a cancelled context interrupts it
// promptly. Returns the delay that was computed.
func (p *Policy) Wait(ctx context.Context, engine string) (time.Duration, error) {
	delay := p.Delay(engine)

	p.mu.Lock()
	p.sessionJobs++
	p.mu.Unlock()

	remaining := delay
	for remaining > 0 {
		chunk := p.uniformDuration(sleepChunkMin, sleepChunkMax)
		if chunk > remaining {
			chunk = remaining
		}
		select {
		case <-ctx.Done():
			return delay - remaining, ctx.Err()
		case <-time.After(chunk):
			remaining -= chunk
		}
	}

	return delay, nil
}

// NoteOutcome records a completed request: the timestamp enters the burst
// history and the backoff level nudges down on success (half-step) or up
// on failure (full step, capped).
func (p *Policy) NoteOutcome(success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.history = append(p.history, p.now())
	if len(p.history) > historyCap {
		p.history = p.history[len(p.history)-historyCap:]
	}

	if success {
		p.backoffLevel -= backoffDecayStep
		if p.backoffLevel < 0 {
			p.backoffLevel = 0
		}
	} else {
		p.backoffLevel++
		if p.backoffLevel > maxBackoffLevel {
			p.backoffLevel = maxBackoffLevel
		}
	}
}

// BackoffLevel returns the current global backoff level.
func (p *Policy) BackoffLevel() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backoffLevel
}

// ShouldTakeBreak reports whether the scheduler should pause before the
// next dispatch cycle, and for how long. Side-effect free so the decision
// stays testable; the scheduler owns the actual sleep.
func (p *Policy) ShouldTakeBreak() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sessionJobs > 0 && p.sessionJobs%breakEveryNJobs == 0 {
		return p.uniformDurationLocked(jobBreakMin, jobBreakMax), true
	}

	if p.now().Sub(p.sessionStart) > longSessionDuration &&
		p.rng.Float64() < longSessionChance {
		return p.uniformDurationLocked(longBreakMin, longBreakMax), true
	}

	return 0, false
}

// countRecentLocked counts history entries within the burst window.
// Caller must hold p.mu.
func (p *Policy) countRecentLocked(now time.Time) int {
	cutoff := now.Add(-p.config.BurstWindow)
	count := 0
	for _, t := range p.history {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}

// uniformDurationLocked draws from [lo, hi). Caller must hold p.mu.
func (p *Policy) uniformDurationLocked(lo, hi time.Duration) time.Duration {
	return lo + time.Duration(p.rng.Int63n(int64(hi-lo)))
}

// uniformDuration is the self-locking variant for use outside p.mu.
func (p *Policy) uniformDuration(lo, hi time.Duration) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uniformDurationLocked(lo, hi)
}
