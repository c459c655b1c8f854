package worker

import (
	"context"

	"github.com/ellipsesearch/visibility-worker/internal/domain"
	"github.com/ellipsesearch/visibility-worker/internal/pacing"
)

// Adapter drives one engine's browser session. Implementations wrap the
// DevTools automation for a specific engine UI; the scheduling layer
// treats them as a black box that turns prompts into responses.
//
// A session is exclusive to one execution unit. Adapters must return
// errors, never panic: a crashed engine surfaces as a failed job.
type Adapter interface {
	// OpenSession attaches to (or creates) the engine's browser tab,
	// applying the behavioral profile for typing and reading pacing.
	OpenSession(ctx context.Context, profile pacing.SessionProfile) error

	// RunPrompt submits one prompt and captures the full response. It
	// honors ctx cancellation but is otherwise free to take as long as
	// the engine does; the caller enforces the job timeout.
	RunPrompt(ctx context.Context, job domain.Job) (domain.Response, error)

	// CloseSession releases the tab. Safe to call without an open
	// session.
	CloseSession(ctx context.Context) error
}

// AdapterFactory creates the adapter for a named engine. Wired in by the
// command layer so the scheduling core never imports engine specifics.
type AdapterFactory func(engine string) (Adapter, error)
