package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  name: faceclock
  user: fc
  password: fc
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 0.6, cfg.Recognition.Tolerance)
	assert.Equal(t, 0.5, cfg.Recognition.ScaleFactor)
	assert.Equal(t, 3, cfg.Recognition.SkipFrames)
	assert.Equal(t, 2*time.Second, cfg.Recognition.CacheTimeout)
	assert.Equal(t, 15, cfg.Recognition.DefaultFPS)
	assert.Equal(t, 0.22, cfg.Liveness.ClosedEARThreshold)
	assert.Equal(t, 2, cfg.Liveness.MinClosedFrames)
	assert.Equal(t, 6*time.Second, cfg.Liveness.SessionWindow)
	assert.Equal(t, 0.6, cfg.Attendance.ConfidenceThreshold)
	assert.Equal(t, 5, cfg.Attendance.MaxEmbeddingsPerIdentity)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  api_key: secret
recognition:
  recognition_tolerance: 0.45
  skip_frames: 5
  cache_timeout: 4s
liveness:
  closed_ear_threshold: 0.18
  session_window: 10s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.APIKey)
	assert.Equal(t, 0.45, cfg.Recognition.Tolerance)
	assert.Equal(t, 5, cfg.Recognition.SkipFrames)
	assert.Equal(t, 4*time.Second, cfg.Recognition.CacheTimeout)
	assert.Equal(t, 0.18, cfg.Liveness.ClosedEARThreshold)
	assert.Equal(t, 10*time.Second, cfg.Liveness.SessionWindow)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  host: db-from-file
`)

	t.Setenv("FC_SERVER_PORT", "7070")
	t.Setenv("FC_DB_HOST", "db-from-env")
	t.Setenv("FC_API_KEY", "env-key")
	t.Setenv("FC_RECOGNITION_TOLERANCE", "0.5")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "db-from-env", cfg.Database.Host)
	assert.Equal(t, "env-key", cfg.Server.APIKey)
	assert.Equal(t, 0.5, cfg.Recognition.Tolerance)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, Name: "fc", User: "u", Password: "p"}
	assert.Equal(t, "postgres://u:p@db:5433/fc?sslmode=disable", d.DSN())
}
