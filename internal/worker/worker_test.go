package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellipsesearch/visibility-worker/internal/dedup"
	"github.com/ellipsesearch/visibility-worker/internal/domain"
	"github.com/ellipsesearch/visibility-worker/internal/logger"
	"github.com/ellipsesearch/visibility-worker/internal/pacing"
)

// fakeAdapter is a scriptable engine adapter.
type fakeAdapter struct {
	mu       sync.Mutex
	opened   bool
	runCalls int
	response domain.Response
	runErr   error
	openErr  error
	runDelay time.Duration
}

func (f *fakeAdapter) OpenSession(_ context.Context, _ pacing.SessionProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	return nil
}

func (f *fakeAdapter) RunPrompt(ctx context.Context, _ domain.Job) (domain.Response, error) {
	f.mu.Lock()
	f.runCalls++
	delay := f.runDelay
	resp, err := f.response, f.runErr
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return domain.Response{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return resp, err
}

func (f *fakeAdapter) CloseSession(context.Context) error { return nil }

func (f *fakeAdapter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runCalls
}

// fakePacer waits instantly.
type fakePacer struct {
	mu    sync.Mutex
	waits int
}

func (f *fakePacer) Wait(ctx context.Context, _ string) (time.Duration, error) {
	f.mu.Lock()
	f.waits++
	f.mu.Unlock()
	return 0, ctx.Err()
}

func (f *fakePacer) Profile() pacing.SessionProfile { return pacing.SessionProfile{} }

// fakeDeduper returns a fixed recommendation.
type fakeDeduper struct {
	result dedup.CheckResult
}

func (f fakeDeduper) Check(string, string) dedup.CheckResult { return f.result }

func proceedDeduper() fakeDeduper {
	return fakeDeduper{result: dedup.CheckResult{Recommendation: dedup.RecommendProceed}}
}

func newUnit(adapter *fakeAdapter, ded Deduper, pacer *fakePacer) *Unit {
	return NewUnit("chatgpt", adapter, pacer, ded, logger.NewNoOp())
}

func TestUnit_ExecuteSuccess(t *testing.T) {
	adapter := &fakeAdapter{response: domain.Response{
		Success: true,
		Text:    "I recommend Acme, see https://reviews.example.com/acme",
		HTML:    `<p><a href="https://reviews.example.com/acme">review</a></p>`,
	}}
	pacer := &fakePacer{}
	u := newUnit(adapter, proceedDeduper(), pacer)

	result := u.Execute(context.Background(), domain.Job{ID: "job-1", Engine: "chatgpt", PromptText: "best tools"})

	require.True(t, result.Success)
	assert.False(t, result.Skipped)
	assert.Equal(t, 1, result.CitationCount, "html and text cite the same URL once")
	assert.Equal(t, 1, pacer.waits)

	executed, skipped := u.Counters()
	assert.Equal(t, int64(1), executed)
	assert.Equal(t, int64(0), skipped)
}

func TestUnit_SkipsDuplicateWithoutTouchingEngine(t *testing.T) {
	adapter := &fakeAdapter{}
	pacer := &fakePacer{}
	ded := fakeDeduper{result: dedup.CheckResult{
		IsDuplicate:    true,
		Recommendation: dedup.RecommendSkip,
	}}
	u := newUnit(adapter, ded, pacer)

	result := u.Execute(context.Background(), domain.Job{ID: "job-1", Engine: "chatgpt"})

	assert.True(t, result.Skipped)
	assert.False(t, result.Success)
	assert.Equal(t, 0, adapter.calls(), "skipped jobs never reach the engine")
	assert.Equal(t, 0, pacer.waits, "skipped jobs pay no pacing cost")
}

func TestUnit_AdapterErrorIsFailure(t *testing.T) {
	adapter := &fakeAdapter{runErr: errors.New("selector not found")}
	pacer := &fakePacer{}
	u := newUnit(adapter, proceedDeduper(), pacer)

	result := u.Execute(context.Background(), domain.Job{ID: "job-1", Engine: "chatgpt"})

	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "selector not found")
}

func TestUnit_OpenSessionFailure(t *testing.T) {
	adapter := &fakeAdapter{openErr: errors.New("tab crashed")}
	u := newUnit(adapter, proceedDeduper(), &fakePacer{})

	result := u.Execute(context.Background(), domain.Job{ID: "job-1", Engine: "chatgpt"})

	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "open session")
	assert.Equal(t, 0, adapter.calls())
}

func newPool(t *testing.T, timeout time.Duration, units map[string]*Unit) *Pool {
	t.Helper()
	return NewPool(units, timeout, false, logger.NewNoOp())
}

func TestPool_DispatchParallelKeepsOrder(t *testing.T) {
	units := map[string]*Unit{
		"chatgpt": newUnit(&fakeAdapter{response: domain.Response{Success: true}}, proceedDeduper(), &fakePacer{}),
		"gemini":  newUnit(&fakeAdapter{response: domain.Response{Success: true}}, proceedDeduper(), &fakePacer{}),
	}
	pool := newPool(t, time.Minute, units)

	jobs := []domain.Job{
		{ID: "job-a", Engine: "chatgpt"},
		{ID: "job-b", Engine: "gemini"},
	}
	results := pool.Dispatch(context.Background(), jobs)

	require.Len(t, results, 2)
	assert.Equal(t, "job-a", results[0].JobID)
	assert.Equal(t, "job-b", results[1].JobID)
}

func TestPool_TimeoutSynthesizesSingleFailure(t *testing.T) {
	slow := &fakeAdapter{runDelay: 10 * time.Second, response: domain.Response{Success: true}}
	units := map[string]*Unit{
		"chatgpt": newUnit(slow, proceedDeduper(), &fakePacer{}),
	}
	pool := newPool(t, 100*time.Millisecond, units)

	start := time.Now()
	results := pool.Dispatch(context.Background(), []domain.Job{{ID: "job-1", Engine: "chatgpt"}})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].ErrorMessage, "timed out")
	assert.Less(t, time.Since(start), 5*time.Second,
		"timeout result must not wait for the unit to finish")
}

func TestPool_UnknownEngineFails(t *testing.T) {
	pool := newPool(t, time.Minute, map[string]*Unit{})

	results := pool.Dispatch(context.Background(), []domain.Job{{ID: "job-1", Engine: "grok"}})
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].ErrorMessage, "no execution unit")
}

func TestPool_SequentialMode(t *testing.T) {
	adapter := &fakeAdapter{response: domain.Response{Success: true}}
	units := map[string]*Unit{
		"chatgpt": newUnit(adapter, proceedDeduper(), &fakePacer{}),
	}
	pool := NewPool(units, time.Minute, true, logger.NewNoOp())

	jobs := []domain.Job{
		{ID: "job-1", Engine: "chatgpt"},
		{ID: "job-2", Engine: "chatgpt"},
	}
	results := pool.Dispatch(context.Background(), jobs)

	require.Len(t, results, 2)
	assert.Equal(t, 2, adapter.calls())
}
