package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_AreInternallyConsistent(t *testing.T) {
	d := Defaults()
	assert.NotEmpty(t, d.Server.ListenAddr)
	assert.Greater(t, d.Sequencer.ParkTimeoutMS, 0)
	assert.Greater(t, d.Health.ThreadsVeryHighWatermark, d.Health.ThreadsHighWatermark)
}

func TestLoadFromFile_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jitserverd.toml")
	contents := []byte(`
[server]
listen_addr = ":9999"

[sequencer]
park_timeout_ms = 2500
`)
	require.NoError(t, os.WriteFile(path, contents, 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.ListenAddr)
	assert.Equal(t, 2500, cfg.Sequencer.ParkTimeoutMS)
	// Untouched sections keep their defaults.
	assert.Equal(t, Defaults().Worker.Workers, cfg.Worker.Workers)
}

func TestLoadFromFile_MissingFileReturnsError(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
