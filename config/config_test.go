package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 4, cfg.Server.Workers)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.ClickHouse.DSN)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  addr: ":9090"
  workers: 8
clickhouse:
  dsn: clickhouse://default:@localhost:9000/backsim
log:
  level: debug
  file: /tmp/backsim.log
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 8, cfg.Server.Workers)
	assert.Equal(t, "clickhouse://default:@localhost:9000/backsim", cfg.ClickHouse.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/backsim.log", cfg.Log.File)
	assert.Equal(t, 100, cfg.Log.MaxSizeMB, "unset fields keep defaults")
}

func TestLoadRejectsBadWorkers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  workers: -2\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Server.Workers, "non-positive worker count falls back")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
