package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	triage := cfg.GetTriage()
	assert.InDelta(t, 0.85, triage.AutoDecideThreshold, 1e-9)
	assert.Equal(t, 5, triage.BatchSize)
	assert.Equal(t, 20, triage.FetchBatchSize)
	assert.Equal(t, 2*time.Second, triage.WorkerJoinTimeout)
	assert.Contains(t, triage.ImportantKeywords, "urgent")
	assert.Contains(t, triage.MarketingKeywords, "limited time")

	assert.Empty(t, cfg.GetLLM().Provider)
	assert.Equal(t, "sqlite", cfg.GetStore().Type)
	assert.Equal(t, 7*24*time.Hour, cfg.GetOptOut().RepeatAfter)
	assert.Equal(t, 500*time.Millisecond, cfg.GetTTS().StagePause)
	assert.Equal(t, 300*time.Millisecond, cfg.GetTTS().DetailPause)
	assert.ElementsMatch(t, []string{"github.com", "stackoverflow.com", "medium.com"}, cfg.GetUnsubscribe().WhitelistedDomains)
}

func TestFetchSizeNeverBelowBatchSize(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())
	cfg.Set("triage.batch_size", 30)
	cfg.Set("triage.fetch_batch_size", 10)

	triage := cfg.GetTriage()
	assert.Equal(t, 30, triage.BatchSize)
	assert.Equal(t, 30, triage.FetchBatchSize)
}

func TestInvalidDurationFallsBack(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())
	cfg.Set("triage.worker_join_timeout", "soon")

	_, err := cfg.GetDuration("triage.worker_join_timeout")
	assert.Error(t, err)
	assert.Equal(t, 2*time.Second, cfg.GetTriage().WorkerJoinTimeout)
}

func TestNewWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("triage:\n  batch_size: 7\nllm:\n  provider: openai\n"), 0o600))

	cfg, err := NewWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.GetTriage().BatchSize)
	assert.Equal(t, "openai", cfg.GetLLM().Provider)
}

func TestNewWithMissingExplicitFile(t *testing.T) {
	_, err := NewWithFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
