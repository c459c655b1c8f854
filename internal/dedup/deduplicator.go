// Package dedup detects repeated and near-identical prompts sent to the
// same engine within a short window. Firing the same question at one
// engine twice in a row is both wasteful and a strong automation signal;
// fanning one prompt out across engines is normal and never flagged.
package dedup

import (
	"strings"
	"sync"
	"time"
)

const (
	// DefaultWindow is how long a prompt is remembered for matching.
	DefaultWindow = 60 * time.Minute

	// DefaultSimilarityThreshold is the Jaccard score above which two
	// prompts count as near-duplicates.
	DefaultSimilarityThreshold = 0.85

	// historyCap bounds the remembered-prompt ring.
	historyCap = 50
)

// Recommendation values returned in a CheckResult.
const (
	RecommendProceed  = "proceed"
	RecommendSkip     = "skip"
	RecommendAddDelay = "add_delay"
)

// CheckResult is the advisory outcome of checking one prompt.
type CheckResult struct {
	// IsDuplicate means an identical prompt hit the same engine within
	// the window.
	IsDuplicate bool `json:"is_duplicate"`
	// IsSimilar means a near-identical prompt was seen recently.
	IsSimilar bool `json:"is_similar"`
	// Similarity is the highest Jaccard score against recent prompts.
	Similarity float64 `json:"similarity"`
	// Recommendation is one of "proceed", "skip", or "add_delay".
	Recommendation string `json:"recommendation"`
}

// entry is one remembered prompt.
type entry struct {
	normalized string
	words      map[string]struct{}
	engine     string
	seenAt     time.Time
}

// Deduplicator remembers recent prompts and flags exact repeats and
// near-duplicates. It is advisory only; callers decide what to do with
// the recommendation.
type Deduplicator struct {
	mu        sync.Mutex
	window    time.Duration
	threshold float64
	history   []entry
	now       func() time.Time
}

// New creates a deduplicator. Non-positive window or threshold fall back
// to the defaults.
func New(window time.Duration, threshold float64) *Deduplicator {
	if window <= 0 {
		window = DefaultWindow
	}
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Deduplicator{
		window:    window,
		threshold: threshold,
		history:   make([]entry, 0, historyCap),
		now:       time.Now,
	}
}

// Check evaluates a prompt destined for an engine against recent history
// and records it. The prompt is always recorded, even when flagged, so a
// third identical attempt still matches.
func (d *Deduplicator) Check(prompt, engine string) CheckResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	normalized := normalize(prompt)
	words := wordSet(normalized)

	result := CheckResult{Recommendation: RecommendProceed}
	cutoff := now.Add(-d.window)

	for _, past := range d.history {
		// Both checks compare same-engine history only; asking several
		// engines the same question is the whole point of the product.
		if past.engine != engine || !past.seenAt.After(cutoff) {
			continue
		}

		if past.normalized == normalized {
			result.IsDuplicate = true
			result.Similarity = 1
			result.Recommendation = RecommendSkip
			break
		}

		if score := jaccard(words, past.words); score > result.Similarity {
			result.Similarity = score
		}
	}

	if !result.IsDuplicate && result.Similarity > d.threshold {
		result.IsSimilar = true
		result.Recommendation = RecommendAddDelay
	}

	d.history = append(d.history, entry{
		normalized: normalized,
		words:      words,
		engine:     engine,
		seenAt:     now,
	})
	if len(d.history) > historyCap {
		d.history = d.history[len(d.history)-historyCap:]
	}

	return result
}

// Size returns the number of remembered prompts.
func (d *Deduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.history)
}

// normalize lowercases a prompt and collapses runs of whitespace so
// cosmetic differences do not defeat exact matching.
func normalize(prompt string) string {
	return strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
}

// wordSet builds the word set of an already-normalized prompt.
func wordSet(normalized string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(normalized) {
		words[w] = struct{}{}
	}
	return words
}

// jaccard computes |a∩b| / |a∪b| over two word sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
