package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rdistcc.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().Server.Capacity, cfg.Server.Capacity)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestLoadConfigParsesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rdistcc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen_addr: \":9999\"\n  http_addr: \":9998\"\n  capacity: 8\nhosts:\n  path: myhosts.yaml\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Server.ListenAddr)
	require.Equal(t, 8, cfg.Server.Capacity)
	require.Equal(t, "myhosts.yaml", cfg.Hosts.Path)
}

func TestLoadConfigEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rdistcc.yaml")

	t.Setenv("RDISTCC_SERVER_LISTEN_ADDR", ":7000")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.Server.ListenAddr)
}

func TestValidateRejectsBadCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Capacity = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "trace"
	require.Error(t, cfg.Validate())
}
