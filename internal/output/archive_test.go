package output

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellipsesearch/visibility-worker/internal/domain"
	"github.com/ellipsesearch/visibility-worker/internal/logger"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := NewArchive(t.TempDir(), "run-1", "worker-1", logger.NewNoOp())
	require.NoError(t, err)
	return a
}

func readArchive(t *testing.T, path string) runFile {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var file runFile
	require.NoError(t, json.Unmarshal(data, &file))
	return file
}

func TestArchive_IncrementalSave(t *testing.T) {
	a := newTestArchive(t)

	for i := 0; i < saveEvery-1; i++ {
		a.Append(domain.JobResult{JobID: "j", Engine: "chatgpt", Success: true})
	}
	_, err := os.Stat(a.Path())
	assert.True(t, os.IsNotExist(err), "no file before the save threshold")

	a.Append(domain.JobResult{JobID: "j", Engine: "chatgpt", Success: true})
	file := readArchive(t, a.Path())
	assert.Len(t, file.Results, saveEvery)
	assert.Equal(t, "run-1", file.RunID)
}

func TestArchive_CloseFlushesRemainder(t *testing.T) {
	a := newTestArchive(t)
	a.Append(domain.JobResult{JobID: "j1", Engine: "gemini", Success: true, CitationCount: 3})
	require.NoError(t, a.Close())

	file := readArchive(t, a.Path())
	require.Len(t, file.Results, 1)
	assert.Equal(t, "worker-1", file.WorkerID)
}

func TestArchive_Summary(t *testing.T) {
	a := newTestArchive(t)
	a.Append(domain.JobResult{JobID: "j1", Engine: "chatgpt", Success: true, CitationCount: 2})
	a.Append(domain.JobResult{JobID: "j2", Engine: "chatgpt", Success: false})
	a.Append(domain.JobResult{JobID: "j3", Engine: "gemini", Skipped: true})

	summary := a.Summary()
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)

	chatgpt := summary.PerEngine["chatgpt"]
	assert.Equal(t, 2, chatgpt.Total)
	assert.Equal(t, 2, chatgpt.Citations)
	assert.Equal(t, 1, summary.PerEngine["gemini"].Skipped)
}
