package dedup

import (
	"fmt"
	"testing"
	"time"
)

func TestCheck_ExactDuplicateSameEngine(t *testing.T) {
	d := New(DefaultWindow, DefaultSimilarityThreshold)

	first := d.Check("What are the best CRM tools for startups?", "chatgpt")
	if first.IsDuplicate || first.Recommendation != RecommendProceed {
		t.Fatalf("first check = %+v, want proceed", first)
	}

	// Case and spacing differences must not defeat the match.
	second := d.Check("  what are THE best   CRM tools for startups?", "chatgpt")
	if !second.IsDuplicate {
		t.Error("expected duplicate on normalized repeat")
	}
	if second.Recommendation != RecommendSkip {
		t.Errorf("Recommendation = %q, want %q", second.Recommendation, RecommendSkip)
	}
	if second.Similarity != 1 {
		t.Errorf("Similarity = %v, want 1", second.Similarity)
	}
}

func TestCheck_SamePromptDifferentEngineProceeds(t *testing.T) {
	d := New(DefaultWindow, DefaultSimilarityThreshold)

	// The standard workload: one prompt fanned out to every engine. Only
	// same-engine history may flag it, so each later engine proceeds
	// without any penalty.
	d.Check("best project management software 2026", "chatgpt")
	for _, engine := range []string{"perplexity", "gemini", "grok"} {
		res := d.Check("best project management software 2026", engine)

		if res.IsDuplicate {
			t.Errorf("%s: same prompt on a different engine is not a duplicate", engine)
		}
		if res.IsSimilar || res.Similarity != 0 {
			t.Errorf("%s: cross-engine repeat scored %v, want 0", engine, res.Similarity)
		}
		if res.Recommendation != RecommendProceed {
			t.Errorf("%s: Recommendation = %q, want %q", engine, res.Recommendation, RecommendProceed)
		}
	}
}

func TestCheck_SimilarPromptAddsDelay(t *testing.T) {
	d := New(DefaultWindow, DefaultSimilarityThreshold)

	// 15 shared words, one differing word each side: 15/17 ≈ 0.88.
	d.Check("what are the top rated email marketing platforms for small businesses in the united states today", "chatgpt")
	res := d.Check("what are the top rated email marketing platforms for small businesses in the united states now", "chatgpt")

	if res.IsDuplicate {
		t.Error("one changed word is not an exact duplicate")
	}
	if !res.IsSimilar {
		t.Errorf("expected similar flag, got similarity %v", res.Similarity)
	}
	if res.Recommendation != RecommendAddDelay {
		t.Errorf("Recommendation = %q, want %q", res.Recommendation, RecommendAddDelay)
	}
}

func TestCheck_DistinctPromptsProceed(t *testing.T) {
	d := New(DefaultWindow, DefaultSimilarityThreshold)

	d.Check("best CRM tools for startups", "chatgpt")
	res := d.Check("how do I bake sourdough bread at home", "chatgpt")

	if res.IsDuplicate || res.IsSimilar {
		t.Errorf("unrelated prompts flagged: %+v", res)
	}
	if res.Recommendation != RecommendProceed {
		t.Errorf("Recommendation = %q, want %q", res.Recommendation, RecommendProceed)
	}
}

func TestCheck_WindowExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := New(DefaultWindow, DefaultSimilarityThreshold)
	d.now = func() time.Time { return now }

	d.Check("best CRM tools for startups", "chatgpt")

	now = now.Add(DefaultWindow + time.Minute)
	res := d.Check("best CRM tools for startups", "chatgpt")
	if res.IsDuplicate {
		t.Error("prompt outside the window must not match")
	}
}

func TestCheck_HistoryBounded(t *testing.T) {
	d := New(DefaultWindow, DefaultSimilarityThreshold)

	for i := 0; i < historyCap*2; i++ {
		d.Check(fmt.Sprintf("prompt number %d about distinct topics", i), "chatgpt")
	}
	if got := d.Size(); got != historyCap {
		t.Errorf("Size = %d, want %d", got, historyCap)
	}
}

func TestJaccard_Symmetry(t *testing.T) {
	a := wordSet("best crm tools for startups")
	b := wordSet("best crm platforms for startups")

	if jaccard(a, b) != jaccard(b, a) {
		t.Error("jaccard must be symmetric")
	}
	if got := jaccard(a, a); got != 1 {
		t.Errorf("jaccard(a, a) = %v, want 1", got)
	}
	if got := jaccard(a, wordSet("")); got != 0 {
		t.Errorf("jaccard(a, empty) = %v, want 0", got)
	}
}
