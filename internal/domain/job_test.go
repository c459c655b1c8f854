package domain

import (
	"testing"
	"time"
)

func TestDurationSeconds(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	explicit := JobResult{Duration: 3 * time.Second}
	if got := explicit.DurationSeconds(); got != 3 {
		t.Errorf("explicit duration = %v, want 3", got)
	}

	// A result built from timestamps alone still reports its duration.
	derived := JobResult{
		StartedAt: started,
		EndedAt:   started.Add(42 * time.Second),
	}
	if got := derived.DurationSeconds(); got != 42 {
		t.Errorf("derived duration = %v, want 42", got)
	}

	var zero JobResult
	if got := zero.DurationSeconds(); got != 0 {
		t.Errorf("zero result duration = %v, want 0", got)
	}
}

func TestNewFailedResult(t *testing.T) {
	started := time.Now().Add(-time.Minute)
	result := NewFailedResult(Job{ID: "job-1", Engine: "chatgpt"}, started, "job timed out after 5m0s")

	if result.Success || result.Skipped {
		t.Errorf("synthesized failure must be terminal: %+v", result)
	}
	if result.JobID != "job-1" || result.Engine != "chatgpt" {
		t.Errorf("identity not carried: %+v", result)
	}
	if result.DurationSeconds() < 59 {
		t.Errorf("duration = %v, want about a minute", result.DurationSeconds())
	}
}
