package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 140, cfg.Timeline.MaxBodyLength)
	assert.Equal(t, 40, cfg.Timeline.DefaultPageSize)
	assert.Equal(t, 5000, cfg.Timeline.FanOutFollowerLimit)
	assert.True(t, cfg.Timeline.SerializeAuthorFanOut)
	assert.Equal(t, uint(3), cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Timeline.ResolveTimeout)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "twissandra.yaml")
	body := []byte(`
store:
  driver: redis
timeline:
  max_body_length: 280
  resolve_timeout: 250ms
cassandra:
  hosts: [cass-1, cass-2]
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("TWISSANDRA_TIMELINE_MAX_PAGE_SIZE", "50")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, 280, cfg.Timeline.MaxBodyLength)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeline.ResolveTimeout)
	assert.Equal(t, 50, cfg.Timeline.MaxPageSize)
	assert.Equal(t, []string{"cass-1", "cass-2"}, cfg.Cassandra.Hosts)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: mongo\n"), 0o600))

	_, err := LoadFile(path)
	assert.ErrorContains(t, err, "unknown store driver")
}
