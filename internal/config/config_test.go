package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PROMPTVAULT_DB", filepath.Join(t.TempDir(), "v.db"))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.MaxBackups)
	assert.Equal(t, 0.9, cfg.Dedupe.Threshold)
	assert.Equal(t, 5, cfg.Dedupe.MinTokens)
	assert.Equal(t, 100*time.Millisecond, cfg.SlowOp())
	assert.Equal(t, filepath.Join(filepath.Dir(cfg.DBPath), "backups"), cfg.BackupDir)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: `+filepath.Join(dir, "custom.db")+`
max_backups: 3
dedupe:
  threshold: 0.8
  min_tokens: 7
slow_op_ms: 250
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "custom.db"), cfg.DBPath)
	assert.Equal(t, 3, cfg.MaxBackups)
	assert.Equal(t, 0.8, cfg.Dedupe.Threshold)
	assert.Equal(t, 7, cfg.Dedupe.MinTokens)
	assert.Equal(t, 250*time.Millisecond, cfg.SlowOp())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_backups: 3\ndb_path: "+filepath.Join(dir, "f.db")+"\n"), 0o644))

	t.Setenv("PROMPTVAULT_MAX_BACKUPS", "7")
	t.Setenv("PROMPTVAULT_DUP_THRESHOLD", "0.95")
	t.Setenv("PROMPTVAULT_DUP_MIN_TOKENS", "8")
	t.Setenv("PROMPTVAULT_SLOW_OP_MS", "400")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxBackups)
	assert.Equal(t, 0.95, cfg.Dedupe.Threshold)
	assert.Equal(t, 8, cfg.Dedupe.MinTokens)
	assert.Equal(t, 400*time.Millisecond, cfg.SlowOp())
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("PROMPTVAULT_MAX_BACKUPS", "minus two")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("PROMPTVAULT_MAX_BACKUPS", "")
	t.Setenv("PROMPTVAULT_DUP_THRESHOLD", "1.7")
	_, err = Load("")
	assert.Error(t, err)

	t.Setenv("PROMPTVAULT_DUP_THRESHOLD", "")
	t.Setenv("PROMPTVAULT_DUP_MIN_TOKENS", "0")
	_, err = Load("")
	assert.Error(t, err)

	t.Setenv("PROMPTVAULT_DUP_MIN_TOKENS", "")
	t.Setenv("PROMPTVAULT_SLOW_OP_MS", "fast")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_CreatesDataDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "deep", "nested", "v.db")
	t.Setenv("PROMPTVAULT_DB", dbPath)

	_, err := Load("")
	require.NoError(t, err)

	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
