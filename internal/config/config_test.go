package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, 0.4, cfg.Risk.BehaviorWeight)
	assert.Equal(t, 0.3, cfg.Risk.SensitivityWeight)
	assert.Equal(t, 0.3, cfg.Risk.IntegrityWeight)
	assert.Equal(t, 1000, cfg.Queue.Capacity)
	assert.Equal(t, 0.9, cfg.Queue.NearCapacityPct)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, 30, cfg.Auth.AccessExpireMinutes)
	assert.Equal(t, 7, cfg.Auth.RefreshExpireDays)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  port: "9090"
risk:
  behavior_weight: 0.5
  sensitivity_weight: 0.25
  integrity_weight: 0.25
queue:
  capacity: 200
  workers: 2
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 0.5, cfg.Risk.BehaviorWeight)
	assert.Equal(t, 200, cfg.Queue.Capacity)
	assert.Equal(t, 2, cfg.Queue.Workers)
	// Untouched fields keep defaults.
	assert.Equal(t, 30, cfg.Auth.AccessExpireMinutes)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7777")
	t.Setenv("RISK_BEHAVIOR_WEIGHT", "0.6")
	t.Setenv("QUEUE_CAPACITY", "50")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "7777", cfg.Server.Port)
	assert.Equal(t, 0.6, cfg.Risk.BehaviorWeight)
	assert.Equal(t, 50, cfg.Queue.Capacity)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestTokenTTLs(t *testing.T) {
	a := Auth{AccessExpireMinutes: 30, RefreshExpireDays: 7}
	assert.Equal(t, float64(30*60), a.AccessTTL().Seconds())
	assert.Equal(t, float64(7*24*3600), a.RefreshTTL().Seconds())
}
