package scheduler

import (
	"sort"

	"github.com/ellipsesearch/visibility-worker/internal/domain"
)

// DefaultEngineOrder is the dispatch preference when a cycle has more
// ready engines than parallel slots.
var DefaultEngineOrder = []string{"chatgpt", "perplexity", "gemini", "grok"}

// selectBatch picks at most one job per ready engine, capped at
// maxParallel. Within an engine the most urgent job wins, with fetch
// order as the tiebreak; across engines the preference order decides who
// gets a slot.
func selectBatch(jobs []domain.Job, readyEngines []string, engineOrder []string, maxParallel int) []domain.Job {
	if len(jobs) == 0 || maxParallel <= 0 {
		return nil
	}

	ready := make(map[string]struct{}, len(readyEngines))
	for _, e := range readyEngines {
		ready[e] = struct{}{}
	}

	// Best job per engine. Stable sort keeps fetch order as the
	// tiebreak inside one priority class.
	sorted := make([]domain.Job, len(jobs))
	copy(sorted, jobs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	perEngine := make(map[string]domain.Job, len(ready))
	for _, job := range sorted {
		if _, ok := ready[job.Engine]; !ok {
			continue
		}
		if _, taken := perEngine[job.Engine]; !taken {
			perEngine[job.Engine] = job
		}
	}

	batch := make([]domain.Job, 0, maxParallel)
	for _, engine := range engineOrder {
		if job, ok := perEngine[engine]; ok {
			batch = append(batch, job)
			delete(perEngine, engine)
			if len(batch) == maxParallel {
				return batch
			}
		}
	}

	// Engines outside the preference list still get slots, in a stable
	// order so selection is deterministic.
	rest := make([]string, 0, len(perEngine))
	for engine := range perEngine {
		rest = append(rest, engine)
	}
	sort.Strings(rest)
	for _, engine := range rest {
		batch = append(batch, perEngine[engine])
		if len(batch) == maxParallel {
			break
		}
	}
	if len(batch) == 0 {
		return nil
	}
	return batch
}
