package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(2*1024*1024*1024), cfg.Pipeline.LargeFileThreshold)
	assert.Equal(t, 1800*time.Second, cfg.Pipeline.SegmentDuration)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.SegmentOverlap)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notebot.yaml")
	yamlBody := `
server:
  address: ":9999"
pipeline:
  max_concurrent_runs: 7
  segment_duration: 10m
providers:
  summarizer: gemini
cost:
  transcription_per_minute: 0.01
  input_per_token: 0.000001
  output_per_token: 0.000002
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	t.Setenv("NOTEBOT_ADDR", ":7777")
	t.Setenv("NOTEBOT_SESSION_TTL", "15m")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Server.Address, "env wins over file")
	assert.Equal(t, 7, cfg.Pipeline.MaxConcurrentRuns)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.SegmentDuration)
	assert.Equal(t, "gemini", cfg.Providers.Summarizer)
	assert.Equal(t, 15*time.Minute, cfg.Session.TTL)
	assert.Equal(t, "sk-test", cfg.Providers.OpenAIAPIKey)
	assert.InDelta(t, 0.01, cfg.Cost.TranscriptionPerMinute, 1e-12)
	assert.Equal(t, "badger", cfg.Storage.ChunkStore, "unset keys keep defaults")
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("NOTEBOT_MAX_CONCURRENT_RUNS", "many")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.MaxConcurrentRuns = 0
	cfg.Pipeline.SegmentOverlap = cfg.Pipeline.SegmentDuration
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_runs")
	assert.Contains(t, err.Error(), "segment_overlap")
}
