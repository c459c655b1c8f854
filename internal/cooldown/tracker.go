// Package cooldown enforces per-engine minimum spacing between requests.
package cooldown

import (
	"sync"
	"time"
)

const (
	// DefaultCooldown applies to engines without an explicit entry.
	DefaultCooldown = 15 * time.Second

	// errorPenalty is added to the effective cooldown per consecutive
	// failure on an engine.
	errorPenalty = 10 * time.Second
)

// engineState tracks the last request and failure streak for one engine.
// Mutated only under the tracker mutex: multiple execution units can
// finish concurrently.
type engineState struct {
	lastRequestAt time.Time
	errorCount    int
}

// Tracker enforces per-engine cooldowns with error-driven penalty
// extension. Each consecutive failure extends the effective cooldown by
// 10s; each success decrements the failure counter by one, so the next
// computed cooldown shrinks as the streak decays.
type Tracker struct {
	mu        sync.Mutex
	cooldowns map[string]time.Duration
	states    map[string]*engineState
	now       func() time.Time
}

// NewTracker creates a tracker with the given per-engine base cooldowns.
// Engines not present in the map use DefaultCooldown.
func NewTracker(cooldowns map[string]time.Duration) *Tracker {
	cp := make(map[string]time.Duration, len(cooldowns))
	for engine, d := range cooldowns {
		cp[engine] = d
	}
	return &Tracker{
		cooldowns: cp,
		states:    make(map[string]*engineState),
		now:       time.Now,
	}
}

// BaseCooldown returns the configured base cooldown for an engine.
func (t *Tracker) BaseCooldown(engine string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baseLocked(engine)
}

func (t *Tracker) baseLocked(engine string) time.Duration {
	if d, ok := t.cooldowns[engine]; ok {
		return d
	}
	return DefaultCooldown
}

// Ready reports whether an engine may receive a request now, and how long
// until it may if not. An engine that has never been used is ready.
func (t *Tracker) Ready(engine string) (bool, time.Duration) {
	remaining := t.Remaining(engine)
	return remaining <= 0, remaining
}

// Remaining returns the time left on an engine's effective cooldown.
func (t *Tracker) Remaining(engine string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[engine]
	if !ok {
		return 0
	}

	effective := t.baseLocked(engine) + time.Duration(state.errorCount)*errorPenalty
	remaining := effective - t.now().Sub(state.lastRequestAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Record notes a completed request on an engine. Failures increment the
// consecutive-error counter; successes decrement it (floor zero). The
// accumulated cooldown is never mutated directly.
func (t *Tracker) Record(engine string, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[engine]
	if !ok {
		state = &engineState{}
		t.states[engine] = state
	}

	state.lastRequestAt = t.now()
	if success {
		if state.errorCount > 0 {
			state.errorCount--
		}
	} else {
		state.errorCount++
	}
}

// ErrorCount returns the current consecutive-error count for an engine.
func (t *Tracker) ErrorCount(engine string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.states[engine]; ok {
		return state.errorCount
	}
	return 0
}

// ReadyEngines returns the engines from the given list that are out of
// cooldown right now. Used by the heartbeat to report capacity.
func (t *Tracker) ReadyEngines(engines []string) []string {
	ready := make([]string, 0, len(engines))
	for _, engine := range engines {
		if ok, _ := t.Ready(engine); ok {
			ready = append(ready, engine)
		}
	}
	return ready
}

// Snapshot returns the remaining cooldown per known engine.
func (t *Tracker) Snapshot() map[string]time.Duration {
	t.mu.Lock()
	engines := make([]string, 0, len(t.states))
	for engine := range t.states {
		engines = append(engines, engine)
	}
	t.mu.Unlock()

	snap := make(map[string]time.Duration, len(engines))
	for _, engine := range engines {
		snap[engine] = t.Remaining(engine)
	}
	return snap
}
