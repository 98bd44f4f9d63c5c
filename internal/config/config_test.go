package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightwatch/luxd/internal/curve"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "iio", cfg.SensorBackend)
	assert.Equal(t, "als", cfg.SensorName)
	assert.Equal(t, "intel_backlight", cfg.BacklightName)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 0.2, cfg.FilterAlpha)
	assert.Equal(t, 5, cfg.DeadBand)
	assert.Equal(t, 20, cfg.MaxStep)
	assert.Equal(t, 3, cfg.MaxFailures)
	assert.Equal(t, []curve.Point{{Lux: 0, Level: 10}, {Lux: 100, Level: 100}, {Lux: 1000, Level: 255}}, cfg.Points())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("READ_TIMEOUT", "100ms")
	t.Setenv("FILTER_ALPHA", "0.5")
	t.Setenv("CURVE", "0:0, 500:128, 2000:255")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 0.5, cfg.FilterAlpha)
	assert.Equal(t, []curve.Point{{Lux: 0, Level: 0}, {Lux: 500, Level: 128}, {Lux: 2000, Level: 255}}, cfg.Points())
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name, key, val string
	}{
		{"zero alpha", "FILTER_ALPHA", "0"},
		{"alpha above one", "FILTER_ALPHA", "1.5"},
		{"zero interval", "POLL_INTERVAL", "0s"},
		{"timeout above interval", "READ_TIMEOUT", "10s"},
		{"negative dead band", "DEAD_BAND", "-1"},
		{"zero max step", "MAX_STEP", "0"},
		{"zero failures", "MAX_SENSOR_FAILURES", "0"},
		{"dim divisor below one", "DIM_DIVISOR", "0.5"},
		{"unknown backend", "SENSOR_BACKEND", "spi"},
		{"malformed curve", "CURVE", "10,20,30"},
		{"descending curve lux", "CURVE", "100:10,50:20"},
		{"descending curve level", "CURVE", "0:100,100:50"},
		{"empty curve", "CURVE", " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "luxd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
poll_interval: 1s
filter_alpha: 0.35
backlight_name: amdgpu_bl0
curve:
  - {lux: 0, level: 5}
  - {lux: 800, level: 200}
`), 0o644))
	t.Setenv("LUXD_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 0.35, cfg.FilterAlpha)
	assert.Equal(t, "amdgpu_bl0", cfg.BacklightName)
	assert.Equal(t, []curve.Point{{Lux: 0, Level: 5}, {Lux: 800, Level: 200}}, cfg.Points())
	// Untouched keys keep their env defaults.
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 20, cfg.MaxStep)
}

func TestLoadYAMLValidatedToo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "luxd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
curve:
  - {lux: 100, level: 50}
  - {lux: 100, level: 60}
`), 0o644))
	t.Setenv("LUXD_CONFIG", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("LUXD_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	assert.Error(t, err)
}
