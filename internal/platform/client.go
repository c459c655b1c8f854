// Package platform is the HTTP client for the job queue and reporting
// API. All failures here are soft: the scheduler logs them and retries on
// the next cycle, it never crashes on platform trouble.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ellipsesearch/visibility-worker/internal/domain"
	"github.com/ellipsesearch/visibility-worker/internal/logger"
)

// Request timeouts per endpoint class. Ingest carries full response HTML
// and gets the longest timeout.
const (
	fetchTimeout   = 30 * time.Second
	claimTimeout   = 15 * time.Second
	ingestTimeout  = 60 * time.Second
	statusTimeout  = 15 * time.Second
	offlineTimeout = 5 * time.Second
)

// API paths.
const (
	queuePath  = "/api/analysis/rpa-queue"
	ingestPath = "/api/analysis/rpa-ingest"
	statusPath = "/api/analysis/rpa-status"
)

// Sentinel errors for callers that branch on failure kind.
var (
	// ErrUnauthorized means the webhook secret was rejected.
	ErrUnauthorized = errors.New("platform: unauthorized")
	// ErrClaimRefused means the queue declined the claim, typically
	// because another worker got there first.
	ErrClaimRefused = errors.New("platform: claim refused")
	// ErrUnexpectedStatus covers any other non-2xx response.
	ErrUnexpectedStatus = errors.New("platform: unexpected status")
)

// Heartbeat is the liveness payload posted on the worker's interval.
type Heartbeat struct {
	WorkerID        string   `json:"worker_id"`
	Status          string   `json:"status"`
	BrowserAttached bool     `json:"chrome_connected"`
	EnginesReady    []string `json:"engines_ready"`
	JobsProcessed   int64    `json:"jobs_processed"`
	JobsFailed      int64    `json:"jobs_failed"`
	ParallelMode    bool     `json:"parallel_mode"`
	Version         string   `json:"version"`
}

// Client talks to the platform's queue and ingest endpoints using the
// shared webhook secret as a bearer token.
type Client struct {
	baseURL    string
	secret     string
	workerID   string
	version    string
	httpClient *http.Client
	logger     logger.Interface
}

// NewClient creates a platform client. The base URL is normalized to have
// no trailing slash.
func NewClient(baseURL, secret, workerID, version string, log logger.Interface) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		secret:   secret,
		workerID: workerID,
		version:  version,
		// Per-request deadlines are set via context; the client-level
		// timeout is only a backstop.
		httpClient: &http.Client{Timeout: 2 * ingestTimeout},
		logger:     log.WithComponent("platform"),
	}
}

// FetchPending retrieves up to limit pending jobs for the given engines.
func (c *Client) FetchPending(ctx context.Context, limit int, engines []string) ([]domain.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	query := url.Values{
		"worker_id": {c.workerID},
		"limit":     {strconv.Itoa(limit)},
		"engines":   {strings.Join(engines, ",")},
	}

	var body struct {
		Jobs []domain.Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, queuePath+"?"+query.Encode(), nil, &body); err != nil {
		return nil, fmt.Errorf("fetch pending jobs: %w", err)
	}

	for i := range body.Jobs {
		// Unknown priority strings degrade to normal rather than failing
		// the whole fetch.
		p, err := domain.ParsePriority(body.Jobs[i].RawPriority)
		if err != nil {
			c.logger.Warn("unknown job priority, treating as normal",
				"job_id", body.Jobs[i].ID,
				"priority", body.Jobs[i].RawPriority,
			)
		}
		body.Jobs[i].Priority = p
	}

	return body.Jobs, nil
}

// Claim atomically claims a batch of jobs. The queue either grants the
// whole batch or refuses it; a refusal returns ErrClaimRefused and the
// caller drops the batch without reporting anything.
func (c *Client) Claim(ctx context.Context, jobIDs []string) error {
	if len(jobIDs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, claimTimeout)
	defer cancel()

	payload := map[string]any{
		"job_ids":   jobIDs,
		"worker_id": c.workerID,
	}
	if err := c.do(ctx, http.MethodPost, queuePath, payload, nil); err != nil {
		if errors.Is(err, ErrUnexpectedStatus) {
			return fmt.Errorf("%w: %v", ErrClaimRefused, err)
		}
		return fmt.Errorf("claim jobs: %w", err)
	}
	return nil
}

// Complete submits the full result of a finished job to the ingest
// endpoint. Called for successes and failures alike; only skipped
// duplicates bypass it.
func (c *Client) Complete(ctx context.Context, job domain.Job, result domain.JobResult) error {
	ctx, cancel := context.WithTimeout(ctx, ingestTimeout)
	defer cancel()

	runID := fmt.Sprintf("%s_%s_%s", c.workerID, result.StartedAt.Format("20060102_150405"), job.Engine)

	payload := map[string]any{
		"job_id":            job.ID,
		"success":           result.Success,
		"event":             "prompt_completed",
		"run_id":            runID,
		"timestamp":         time.Now().Format(time.RFC3339),
		"brand_id":          job.BrandID,
		"analysis_batch_id": job.BatchID,
		"language":          job.Language,
		"region":            job.Region,
		"simulation_id":     job.ID,
		"result": map[string]any{
			"prompt_id":        job.PromptID,
			"prompt_text":      job.PromptText,
			"engine":           job.Engine,
			"response_html":    result.HTML,
			"response_text":    result.Text,
			"sources":          result.Sources,
			"citation_count":   result.CitationCount,
			"start_time":       result.StartedAt.Format(time.RFC3339),
			"end_time":         result.EndedAt.Format(time.RFC3339),
			"duration_seconds": result.DurationSeconds(),
			"success":          result.Success,
			"error_message":    result.ErrorMessage,
			"run_id":           runID,
		},
	}

	if err := c.do(ctx, http.MethodPost, ingestPath, payload, nil); err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	return nil
}

// PatchStatus updates the queue row for a job after its result has been
// ingested (or after ingest failed).
func (c *Client) PatchStatus(ctx context.Context, jobID, engine string, success bool, errMsg string) error {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	payload := map[string]any{
		"job_id":  jobID,
		"success": success,
		"engine":  engine,
	}
	if errMsg != "" {
		payload["error_message"] = errMsg
	}

	if err := c.do(ctx, http.MethodPatch, queuePath, payload, nil); err != nil {
		return fmt.Errorf("patch status for job %s: %w", jobID, err)
	}
	return nil
}

// SendHeartbeat posts the worker's liveness payload. The first heartbeat
// doubles as registration.
func (c *Client) SendHeartbeat(ctx context.Context, hb Heartbeat) error {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	hb.WorkerID = c.workerID
	hb.Version = c.version
	if hb.Status == "" {
		hb.Status = "active"
	}

	if err := c.do(ctx, http.MethodPost, statusPath, hb, nil); err != nil {
		return fmt.Errorf("send heartbeat: %w", err)
	}
	return nil
}

// Deregister tells the platform this worker is going offline. Called once
// during shutdown.
func (c *Client) Deregister(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, offlineTimeout)
	defer cancel()

	path := statusPath + "?worker_id=" + url.QueryEscape(c.workerID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("deregister: %w", err)
	}
	return nil
}

// do executes one authenticated JSON request and decodes the response
// into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s returned %d: %s",
			ErrUnexpectedStatus, method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
