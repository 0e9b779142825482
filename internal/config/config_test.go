package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HEAT_DATA_PATH", "HEAT_REGISTRY", "HEAT_SHOT_DIGITS", "HEAT_TIME_DIGITS", "HEAT_LOG_FORMAT", "HEAT_WEB_ADDR", "HEAT_ENGINE_CMD"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "./data", cfg.DataPath)
	assert.Equal(t, 6, cfg.ShotDigits)
	assert.Equal(t, 9, cfg.TimeDigits)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, ":8080", cfg.WebAddr)
	assert.Empty(t, cfg.EngineCmd)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HEAT_DATA_PATH", "/scratch/heat")
	t.Setenv("HEAT_SHOT_DIGITS", "7")
	t.Setenv("HEAT_LOG_FORMAT", "console")
	t.Setenv("HEAT_ENGINE_CMD", "docker run heat")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/scratch/heat", cfg.DataPath)
	assert.Equal(t, 7, cfg.ShotDigits)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, []string{"docker", "run", "heat"}, cfg.EngineCmd)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("non numeric digits", func(t *testing.T) {
		t.Setenv("HEAT_SHOT_DIGITS", "six")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("digits out of range", func(t *testing.T) {
		t.Setenv("HEAT_SHOT_DIGITS", "0")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("unknown log format", func(t *testing.T) {
		t.Setenv("HEAT_LOG_FORMAT", "xml")
		_, err := Load()
		require.Error(t, err)
	})
}

func TestRegistry(t *testing.T) {
	cfg := &Config{}
	reg, err := cfg.Registry()
	require.NoError(t, err)
	assert.True(t, reg.IsMachine("nstx"))

	path := filepath.Join(t.TempDir(), "reg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("machines: [mast]\n"), 0o644))
	cfg.RegistryPath = path
	reg, err = cfg.Registry()
	require.NoError(t, err)
	assert.True(t, reg.IsMachine("mast"))
}
