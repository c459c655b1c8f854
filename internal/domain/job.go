// Package domain provides domain models used across the worker.
package domain

import (
	"time"
)

// Job is a unit of work pulled from the platform queue: run one prompt
// against one AI engine and capture the answer. Jobs are immutable once
// fetched; the queue guarantees IDs are unique for its lifetime.
type Job struct {
	// ID uniquely identifies the job within the remote queue.
	ID string `json:"id" mapstructure:"id"`
	// BrandID is the brand the prompt is analyzed for.
	BrandID string `json:"brand_id" mapstructure:"brand_id"`
	// PromptID identifies the prompt within the platform.
	PromptID string `json:"prompt_id" mapstructure:"prompt_id"`
	// PromptText is the text submitted to the engine.
	PromptText string `json:"prompt_text" mapstructure:"prompt_text"`
	// Engine is the target AI engine name (e.g. "chatgpt").
	Engine string `json:"engine" mapstructure:"engine"`
	// BatchID groups jobs belonging to one analysis batch.
	BatchID string `json:"analysis_batch_id,omitempty" mapstructure:"analysis_batch_id"`
	// Priority orders jobs within a dispatch cycle.
	Priority Priority `json:"-" mapstructure:"-"`
	// RawPriority is the priority string as received from the queue.
	RawPriority string `json:"priority,omitempty" mapstructure:"priority"`
	// Language is the prompt language (default "en").
	Language string `json:"language,omitempty" mapstructure:"language"`
	// Region is the geographic region for the analysis (default "global").
	Region string `json:"region,omitempty" mapstructure:"region"`
	// BrandDomain is the brand's primary domain.
	BrandDomain string `json:"brand_domain,omitempty" mapstructure:"brand_domain"`
	// BrandName is the brand's display name.
	BrandName string `json:"brand_name,omitempty" mapstructure:"brand_name"`
	// BrandAliases lists alternative brand names.
	BrandAliases []string `json:"brand_aliases,omitempty" mapstructure:"brand_aliases"`
}

// Source is a single cited source extracted from an engine response.
type Source struct {
	// URL is the cited page URL, if one was resolvable.
	URL string `json:"url"`
	// Title is the citation title, falling back to the domain.
	Title string `json:"title"`
	// Domain is the normalized bare hostname.
	Domain string `json:"domain"`
}

// Response is what the automation adapter returns from running a prompt.
type Response struct {
	// Success reports whether an answer was captured.
	Success bool `json:"success"`
	// Text is the plain-text answer.
	Text string `json:"response_text"`
	// HTML is the raw answer markup as rendered by the engine.
	HTML string `json:"response_html"`
	// Sources lists cited sources found in the answer.
	Sources []Source `json:"sources"`
	// CitationCount is the number of citations found.
	CitationCount int `json:"citation_count"`
	// ErrorMessage describes the failure when Success is false.
	ErrorMessage string `json:"error_message,omitempty"`
	// Elapsed is how long the engine took to answer.
	Elapsed time.Duration `json:"-"`
}

// JobResult is the terminal outcome of one job. Each job produces exactly
// one JobResult, reported to the platform exactly once (skipped results
// are counted locally and never reported).
type JobResult struct {
	JobID         string        `json:"job_id"`
	Engine        string        `json:"engine"`
	Success       bool          `json:"success"`
	Skipped       bool          `json:"skipped"`
	Text          string        `json:"response_text"`
	HTML          string        `json:"response_html"`
	Sources       []Source      `json:"sources"`
	CitationCount int           `json:"citation_count"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	StartedAt     time.Time     `json:"start_time"`
	EndedAt       time.Time     `json:"end_time"`
	Duration      time.Duration `json:"-"`
}

// DurationSeconds returns the job duration in seconds for reporting.
// Results built without an explicit Duration derive it from the
// start and end timestamps.
func (r *JobResult) DurationSeconds() float64 {
	if r.Duration > 0 {
		return r.Duration.Seconds()
	}
	return r.EndedAt.Sub(r.StartedAt).Seconds()
}

// NewFailedResult builds a terminal failure result for a job. Used for the
// timeout path, where no adapter response exists.
func NewFailedResult(job Job, startedAt time.Time, errMsg string) JobResult {
	now := time.Now()
	return JobResult{
		JobID:        job.ID,
		Engine:       job.Engine,
		Success:      false,
		ErrorMessage: errMsg,
		StartedAt:    startedAt,
		EndedAt:      now,
		Duration:     now.Sub(startedAt),
	}
}
