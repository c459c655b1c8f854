package pacing

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Behavioral factor bounds. Values are drawn once per session so the
// profile stays internally consistent for the whole run.
const (
	typingFactorMin  = 0.85
	typingFactorMax  = 1.15
	readingFactorMin = 0.8
	readingFactorMax = 1.2

	// readingCharsPerSecond approximates an average reading speed of
	// 200 words per minute.
	readingCharsPerSecond = 3.3

	minReadingTime = 1 * time.Second
	maxReadingTime = 30 * time.Second
)

// SessionProfile is a randomized but internally consistent behavioral
// fingerprint for one automation session. It is generated once per run,
// handed read-only to the automation adapter, and never mutated by the
// scheduling layer beyond creation and reset.
type SessionProfile struct {
	// SessionID uniquely identifies this session.
	SessionID string `json:"session_id"`
	// StartedAt is when the profile was generated.
	StartedAt time.Time `json:"started_at"`
	// TypingSpeedFactor scales typing delays (0.85–1.15).
	TypingSpeedFactor float64 `json:"typing_speed_factor"`
	// ReadingSpeedFactor scales simulated reading time (0.8–1.2).
	ReadingSpeedFactor float64 `json:"reading_speed_factor"`
}

// NewSessionProfile generates a fresh behavioral profile.
func NewSessionProfile(rng *rand.Rand) SessionProfile {
	return SessionProfile{
		SessionID:          uuid.NewString(),
		StartedAt:          time.Now(),
		TypingSpeedFactor:  uniform(rng, typingFactorMin, typingFactorMax),
		ReadingSpeedFactor: uniform(rng, readingFactorMin, readingFactorMax),
	}
}

// TypingDelay scales a base per-keystroke delay by the session's typing
// speed factor.
func (p SessionProfile) TypingDelay(base time.Duration) time.Duration {
	return time.Duration(float64(base) / p.TypingSpeedFactor)
}

// ReadingTime estimates how long this session's "user" takes to read a
// response of the given length, clamped to [1s, 30s].
func (p SessionProfile) ReadingTime(responseLength int) time.Duration {
	if responseLength <= 0 {
		return 0
	}
	charsPerSecond := readingCharsPerSecond * p.ReadingSpeedFactor
	estimate := time.Duration(float64(responseLength) / charsPerSecond * float64(time.Second))
	if estimate < minReadingTime {
		return minReadingTime
	}
	if estimate > maxReadingTime {
		return maxReadingTime
	}
	return estimate
}

// uniform draws from [min, max).
func uniform(rng *rand.Rand, minVal, maxVal float64) float64 {
	return minVal + rng.Float64()*(maxVal-minVal)
}
