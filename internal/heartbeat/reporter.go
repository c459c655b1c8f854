// Package heartbeat keeps the platform's worker registry current. The
// reporter runs on its own ticker, independent of scheduler cycles, so a
// long-running job never makes the worker look dead.
package heartbeat

import (
	"context"
	"time"

	"github.com/ellipsesearch/visibility-worker/internal/logger"
	"github.com/ellipsesearch/visibility-worker/internal/platform"
)

// DefaultInterval between heartbeats.
const DefaultInterval = 10 * time.Second

// Sender is the platform surface the reporter needs.
type Sender interface {
	SendHeartbeat(ctx context.Context, hb platform.Heartbeat) error
	Deregister(ctx context.Context) error
}

// StatusFunc builds the current heartbeat payload. Called on every tick
// so counters and engine readiness are always fresh.
type StatusFunc func() platform.Heartbeat

// Reporter posts periodic liveness updates and one deregistration on
// shutdown. Heartbeat failures are logged and swallowed: liveness
// reporting must never disturb job processing.
type Reporter struct {
	sender   Sender
	status   StatusFunc
	interval time.Duration
	logger   logger.Interface
}

// NewReporter creates a reporter. Non-positive intervals fall back to the
// default.
func NewReporter(sender Sender, status StatusFunc, interval time.Duration, log logger.Interface) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{
		sender:   sender,
		status:   status,
		interval: interval,
		logger:   log.WithComponent("heartbeat"),
	}
}

// Run sends an immediate registration heartbeat, then ticks until the
// context is cancelled, and finally deregisters exactly once. The
// deregistration uses a fresh context because the loop's is already dead.
func (r *Reporter) Run(ctx context.Context) {
	r.beat(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.deregister()
			return
		case <-ticker.C:
			r.beat(ctx)
		}
	}
}

func (r *Reporter) beat(ctx context.Context) {
	if err := r.sender.SendHeartbeat(ctx, r.status()); err != nil {
		r.logger.Warn("heartbeat failed", "error", err)
	}
}

func (r *Reporter) deregister() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.sender.Deregister(ctx); err != nil {
		r.logger.Warn("deregistration failed", "error", err)
		return
	}
	r.logger.Info("worker deregistered")
}
