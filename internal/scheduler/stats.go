package scheduler

import (
	"sync/atomic"
	"time"
)

// Stats tracks run counters. All fields are atomics: execution units
// finish concurrently and the heartbeat reads while the loop writes.
type Stats struct {
	startedAt time.Time

	cycles     atomic.Int64
	batches    atomic.Int64
	processed  atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	skipped    atomic.Int64
	fetchFails atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Runtime    time.Duration `json:"runtime"`
	Cycles     int64         `json:"cycles"`
	Batches    int64         `json:"batches"`
	Processed  int64         `json:"jobs_processed"`
	Succeeded  int64         `json:"jobs_succeeded"`
	Failed     int64         `json:"jobs_failed"`
	Skipped    int64         `json:"jobs_skipped"`
	FetchFails int64         `json:"fetch_failures"`
}

// NewStats creates a stats block anchored at now.
func NewStats() *Stats {
	return &Stats{startedAt: time.Now()}
}

// RecordCycle counts one completed poll cycle.
func (s *Stats) RecordCycle() { s.cycles.Add(1) }

// RecordBatch counts one dispatched batch.
func (s *Stats) RecordBatch() { s.batches.Add(1) }

// RecordFetchFailure counts a failed queue fetch.
func (s *Stats) RecordFetchFailure() { s.fetchFails.Add(1) }

// RecordResult counts one terminal job outcome.
func (s *Stats) RecordResult(success, skipped bool) {
	switch {
	case skipped:
		s.skipped.Add(1)
	case success:
		s.processed.Add(1)
		s.succeeded.Add(1)
	default:
		s.processed.Add(1)
		s.failed.Add(1)
	}
}

// Processed returns jobs that reached an engine (success or failure).
func (s *Stats) Processed() int64 { return s.processed.Load() }

// Failed returns the failed-job count.
func (s *Stats) Failed() int64 { return s.failed.Load() }

// Snapshot copies the counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Runtime:    time.Since(s.startedAt),
		Cycles:     s.cycles.Load(),
		Batches:    s.batches.Load(),
		Processed:  s.processed.Load(),
		Succeeded:  s.succeeded.Load(),
		Failed:     s.failed.Load(),
		Skipped:    s.skipped.Load(),
		FetchFails: s.fetchFails.Load(),
	}
}
