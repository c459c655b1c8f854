package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.Set("platform.secret", "test-secret")
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newTestViper(t))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000", cfg.Platform.URL)
	assert.Equal(t, 4, cfg.Scheduler.MaxParallel)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, 15*time.Second, cfg.Pacing.MinDelay)
	assert.Equal(t, 45*time.Second, cfg.Pacing.MaxDelay)
	assert.Equal(t, 300*time.Second, cfg.Worker.JobTimeout)
	assert.Equal(t, 0.85, cfg.Dedup.SimilarityThreshold)
	assert.True(t, cfg.Worker.Stealth)
	assert.Equal(t, []string{"chatgpt", "perplexity", "gemini", "grok"}, cfg.Scheduler.Engines)
}

func TestLoad_SecretRequired(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret")
}

func TestLoad_DurationStrings(t *testing.T) {
	v := newTestViper(t)
	v.Set("pacing.min_delay", "5s")
	v.Set("pacing.max_delay", "20s")
	v.Set("worker.job_timeout", "2m")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Pacing.MinDelay)
	assert.Equal(t, 2*time.Minute, cfg.Worker.JobTimeout)
}

func TestLoad_RejectsInvalidPacing(t *testing.T) {
	v := newTestViper(t)
	v.Set("pacing.min_delay", "50s")
	v.Set("pacing.max_delay", "10s")

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_delay")
}

func TestLoadEngines_MissingFileUsesDefaults(t *testing.T) {
	engines, err := LoadEngines(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	require.Len(t, engines, 4)
	assert.Equal(t, "chatgpt", engines[0].Name)
	assert.Equal(t, 30*time.Second, engines[0].Cooldown)
}

func TestLoadEngines_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engines.yml")
	content := `engines:
  - name: chatgpt
    url: https://chatgpt.com
    cooldown: 45s
  - name: gemini
    url: https://gemini.google.com
    enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	engines, err := LoadEngines(path)
	require.NoError(t, err)
	require.Len(t, engines, 2)

	assert.Equal(t, 45*time.Second, engines[0].Cooldown)
	assert.True(t, engines[0].Enabled, "enabled defaults to true")
	assert.False(t, engines[1].Enabled)
	assert.Equal(t, 15*time.Second, engines[1].Cooldown, "cooldown defaults to 15s")

	assert.Equal(t, []string{"chatgpt"}, EnabledNames(engines))

	cooldowns := CooldownMap(engines)
	assert.Equal(t, 45*time.Second, cooldowns["chatgpt"])
	_, hasDisabled := cooldowns["gemini"]
	assert.False(t, hasDisabled)
}

func TestLoadEngines_NameRequired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engines.yml")
	require.NoError(t, os.WriteFile(path, []byte("engines:\n  - url: https://x.test\n"), 0o644))

	_, err := LoadEngines(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}
