package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellipsesearch/visibility-worker/internal/domain"
	"github.com/ellipsesearch/visibility-worker/internal/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-secret", "worker-1", "test", logger.NewNoOp())
}

func TestFetchPending(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/analysis/rpa-queue", r.URL.Path)
		assert.Equal(t, "Bearer test-secret", r.Header.Get("Authorization"))
		assert.Equal(t, "worker-1", r.URL.Query().Get("worker_id"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "chatgpt,gemini", r.URL.Query().Get("engines"))

		json.NewEncoder(w).Encode(map[string]any{
			"jobs": []map[string]any{
				{
					"id":          "job-1",
					"brand_id":    "brand-1",
					"prompt_id":   "p-1",
					"prompt_text": "best crm tools",
					"engine":      "chatgpt",
					"priority":    "immediate",
				},
				{
					"id":          "job-2",
					"brand_id":    "brand-1",
					"prompt_id":   "p-2",
					"prompt_text": "best email tools",
					"engine":      "gemini",
					"priority":    "made-up-priority",
				},
			},
		})
	})

	jobs, err := c.FetchPending(context.Background(), 5, []string{"chatgpt", "gemini"})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, domain.PriorityImmediate, jobs[0].Priority)
	// Unknown priorities degrade to normal instead of failing the fetch.
	assert.Equal(t, domain.PriorityNormal, jobs[1].Priority)
}

func TestFetchPending_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.FetchPending(context.Background(), 5, []string{"chatgpt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestClaim(t *testing.T) {
	var got struct {
		JobIDs   []string `json:"job_ids"`
		WorkerID string   `json:"worker_id"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.Claim(context.Background(), []string{"job-1", "job-2"}))
	assert.Equal(t, []string{"job-1", "job-2"}, got.JobIDs)
	assert.Equal(t, "worker-1", got.WorkerID)
}

func TestClaim_RefusedIsTyped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	err := c.Claim(context.Background(), []string{"job-1"})
	assert.ErrorIs(t, err, ErrClaimRefused)
}

func TestClaim_EmptyBatchIsNoop(t *testing.T) {
	called := false
	c := newTestClient(t, func(http.ResponseWriter, *http.Request) { called = true })

	require.NoError(t, c.Claim(context.Background(), nil))
	assert.False(t, called)
}

func TestComplete(t *testing.T) {
	var payload map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analysis/rpa-ingest", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusCreated)
	})

	job := domain.Job{
		ID:       "job-1",
		BrandID:  "brand-1",
		PromptID: "p-1",
		Engine:   "chatgpt",
		BatchID:  "batch-9",
	}
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	result := domain.JobResult{
		JobID:     "job-1",
		Engine:    "chatgpt",
		Success:   true,
		Text:      "answer",
		StartedAt: started,
		EndedAt:   started.Add(42 * time.Second),
	}

	require.NoError(t, c.Complete(context.Background(), job, result))

	assert.Equal(t, "job-1", payload["job_id"])
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "prompt_completed", payload["event"])
	assert.Equal(t, "batch-9", payload["analysis_batch_id"])

	inner, ok := payload["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "answer", inner["response_text"])
	assert.InDelta(t, 42.0, inner["duration_seconds"], 0.01)
}

func TestPatchStatus(t *testing.T) {
	var payload map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/analysis/rpa-queue", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	})

	require.NoError(t, c.PatchStatus(context.Background(), "job-1", "chatgpt", false, "timeout"))
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, "timeout", payload["error_message"])
}

func TestSendHeartbeat_FillsIdentity(t *testing.T) {
	var hb Heartbeat
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analysis/rpa-status", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&hb))
	})

	require.NoError(t, c.SendHeartbeat(context.Background(), Heartbeat{
		EnginesReady: []string{"chatgpt"},
	}))
	assert.Equal(t, "worker-1", hb.WorkerID)
	assert.Equal(t, "active", hb.Status)
	assert.Equal(t, "test", hb.Version)
}

func TestDeregister(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "worker-1", r.URL.Query().Get("worker_id"))
	})

	require.NoError(t, c.Deregister(context.Background()))
}

func TestUnauthorizedIsTyped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := c.Deregister(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
}
