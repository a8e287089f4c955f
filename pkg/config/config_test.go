package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hraban/kennyfs/pkg/config"
)

// writeYAML marshals v with yaml.v3 and writes it to a fresh config file in
// t.TempDir(), mirroring how an operator's on-disk config is actually
// produced (hand-written YAML), rather than hand-assembling a string.
func writeYAML(t *testing.T, v any) string {
	t.Helper()
	b, err := yaml.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "kennyfsd.yaml")
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeYAML(t, map[string]any{
		"backend": map[string]any{"root": t.TempDir()},
	})

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "KFS1", cfg.SOP)
	assert.Equal(t, 7734, cfg.Server.ListenPort)
	assert.Equal(t, uint64(64*1024), cfg.Ring.BufCap.Uint64())
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadOverridesDefaults(t *testing.T) {
	root := t.TempDir()
	path := writeYAML(t, map[string]any{
		"sop": "KFS2",
		"server": map[string]any{
			"listen_port":  8899,
			"idle_timeout": "30s",
		},
		"ring":    map[string]any{"buf_cap": "1MiB"},
		"logging": map[string]any{"level": "DEBUG", "format": "json"},
		"metrics": map[string]any{"enabled": true, "port": 9999},
		"backend": map[string]any{"root": root},
	})

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "KFS2", cfg.SOP)
	assert.Equal(t, 8899, cfg.Server.ListenPort)
	assert.Equal(t, "30s", cfg.Server.IdleTimeout)
	assert.Equal(t, uint64(1024*1024), cfg.Ring.BufCap.Uint64())
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9999, cfg.Metrics.Port)
	assert.Equal(t, root, cfg.Backend.Root)
}

func TestLoadRejectsMissingBackendRoot(t *testing.T) {
	path := writeYAML(t, map[string]any{})

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	path := writeYAML(t, map[string]any{
		"backend": map[string]any{"root": t.TempDir()},
		"logging": map[string]any{"level": "VERBOSE", "format": "text"},
	})

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsEnabledMetricsWithoutPort(t *testing.T) {
	path := writeYAML(t, map[string]any{
		"backend": map[string]any{"root": t.TempDir()},
		"metrics": map[string]any{"enabled": true, "port": 0},
	})

	_, err := config.Load(path)
	require.Error(t, err)
}
