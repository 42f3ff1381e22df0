package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "hey strom", cfg.Voice.WakePhrase)
	assert.Equal(t, 0.5, cfg.Voice.PhraseTolerance)
	assert.Equal(t, 50, cfg.Conversation.MaxHistory)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.ScanInterval)
	assert.Equal(t, 3*time.Second, cfg.STT.ProbeTimeout)
	assert.Equal(t, 0, cfg.STT.OfflineRetries)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
voice:
  wake_phrase: "hello computer"
  phrase_tolerance: 0.25
scheduler:
  scan_interval: 5s
conversation:
  max_history: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	t.Setenv("CORTEXVOICE_STT_OFFLINE_RETRIES", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "hello computer", cfg.Voice.WakePhrase)
	assert.Equal(t, 0.25, cfg.Voice.PhraseTolerance)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.ScanInterval)
	assert.Equal(t, 10, cfg.Conversation.MaxHistory)
	assert.Equal(t, 2, cfg.STT.OfflineRetries)
	// untouched keys keep their defaults
	assert.Equal(t, "stop strom", cfg.Voice.StopPhrase)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Voice.WakePhrase, cfg.Voice.WakePhrase)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty wake phrase", func(c *Config) { c.Voice.WakePhrase = "  " }},
		{"tolerance too high", func(c *Config) { c.Voice.PhraseTolerance = 1.5 }},
		{"zero history", func(c *Config) { c.Conversation.MaxHistory = 0 }},
		{"scan too fast", func(c *Config) { c.Scheduler.ScanInterval = 10 * time.Millisecond }},
		{"negative retries", func(c *Config) { c.STT.OfflineRetries = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSave_RoundTripsThroughLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Voice.ContinuousMode = true
	cfg.Metrics.Addr = ":9099"

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.Voice.ContinuousMode)
	assert.Equal(t, ":9099", loaded.Metrics.Addr)
	assert.Equal(t, cfg.Voice.MaxUtterance, loaded.Voice.MaxUtterance)
}
