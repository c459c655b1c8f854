// Package output persists a local JSON archive of every run. The
// platform is the system of record; the archive exists so a run can be
// audited after the fact even when ingest was flaky.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ellipsesearch/visibility-worker/internal/domain"
	"github.com/ellipsesearch/visibility-worker/internal/logger"
)

// saveEvery is how many appended results trigger an incremental flush.
const saveEvery = 5

// EngineSummary aggregates results for one engine.
type EngineSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Citations int `json:"citations"`
}

// RunSummary is the aggregate block of the archive file.
type RunSummary struct {
	Total     int                      `json:"total"`
	Succeeded int                      `json:"succeeded"`
	Failed    int                      `json:"failed"`
	Skipped   int                      `json:"skipped"`
	PerEngine map[string]EngineSummary `json:"per_engine"`
}

// runFile is the archive's on-disk shape.
type runFile struct {
	RunID     string             `json:"run_id"`
	WorkerID  string             `json:"worker_id"`
	StartedAt time.Time          `json:"started_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	Summary   RunSummary         `json:"summary"`
	Results   []domain.JobResult `json:"results"`
}

// Archive collects job results and writes them to one JSON file per run.
// Appends are cheap; disk writes happen every few results and on Close.
type Archive struct {
	mu        sync.Mutex
	path      string
	runID     string
	workerID  string
	startedAt time.Time
	results   []domain.JobResult
	unsaved   int
	logger    logger.Interface
}

// NewArchive creates the archive under dir, creating the directory if
// needed. The file is named after the run start time and worker id.
func NewArchive(dir, runID, workerID string, log logger.Interface) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	startedAt := time.Now()
	name := fmt.Sprintf("run_%s_%s.json", startedAt.Format("20060102_150405"), workerID)
	return &Archive{
		path:      filepath.Join(dir, name),
		runID:     runID,
		workerID:  workerID,
		startedAt: startedAt,
		logger:    log.WithComponent("archive"),
	}, nil
}

// Path returns the archive file location.
func (a *Archive) Path() string { return a.path }

// Append records one result and flushes incrementally. Implements the
// scheduler's result sink; write errors are logged, never propagated.
func (a *Archive) Append(result domain.JobResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.results = append(a.results, result)
	a.unsaved++
	if a.unsaved >= saveEvery {
		if err := a.writeLocked(); err != nil {
			a.logger.Warn("incremental archive write failed", "error", err)
			return
		}
		a.unsaved = 0
	}
}

// Summary aggregates the collected results.
func (a *Archive) Summary() RunSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return summarize(a.results)
}

// Flush writes the archive to disk unconditionally.
func (a *Archive) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.writeLocked(); err != nil {
		return err
	}
	a.unsaved = 0
	return nil
}

// Close performs the final flush.
func (a *Archive) Close() error {
	return a.Flush()
}

// writeLocked writes atomically via a temp file rename. Caller holds
// a.mu.
func (a *Archive) writeLocked() error {
	file := runFile{
		RunID:     a.runID,
		WorkerID:  a.workerID,
		StartedAt: a.startedAt,
		UpdatedAt: time.Now(),
		Summary:   summarize(a.results),
		Results:   a.results,
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}

	tmp := a.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	if err := os.Rename(tmp, a.path); err != nil {
		return fmt.Errorf("replace archive: %w", err)
	}
	return nil
}

func summarize(results []domain.JobResult) RunSummary {
	summary := RunSummary{PerEngine: make(map[string]EngineSummary)}
	for _, r := range results {
		summary.Total++
		engine := summary.PerEngine[r.Engine]
		engine.Total++

		switch {
		case r.Skipped:
			summary.Skipped++
			engine.Skipped++
		case r.Success:
			summary.Succeeded++
			engine.Succeeded++
			engine.Citations += r.CitationCount
		default:
			summary.Failed++
			engine.Failed++
		}
		summary.PerEngine[r.Engine] = engine
	}
	return summary
}
