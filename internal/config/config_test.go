package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EnvOnlyDefaults(t *testing.T) {
	cfg, err := Load("", true)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "America/New_York", cfg.Calendar.Timezone)
	assert.Equal(t, 3, cfg.Jobs.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Jobs.Retry.BaseDelay)
	assert.Equal(t, 15*time.Minute, cfg.Jobs.StaleAfter)
	assert.InDelta(t, 0.10, cfg.Strikes.DeltaMin, 1e-9)
	assert.InDelta(t, 0.30, cfg.Strikes.DeltaMax, 1e-9)
	assert.Equal(t, int64(100), cfg.Strikes.MinOpenInterest)
	assert.InDelta(t, 3.0, cfg.Exits.StopMultiplier, 1e-9)
	assert.Contains(t, cfg.GuardRails.AllowedSymbols, "SPY")
	assert.Contains(t, cfg.GuardRails.AllowedStrategies, "short_strangle")
}

func TestLoad_FileOverridesAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := []byte(`
server:
  http_addr: ":9090"
strikes:
  delta_min: 0.12
jobs:
  retry:
    max_attempts: 5
`)
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	t.Setenv("ZDTE_SIZING_AGGRESSION", "80")

	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	assert.InDelta(t, 0.12, cfg.Strikes.DeltaMin, 1e-9)
	assert.Equal(t, 5, cfg.Jobs.Retry.MaxAttempts)
	assert.InDelta(t, 80.0, cfg.Sizing.Aggression, 1e-9)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), false)
	assert.Error(t, err)
}
