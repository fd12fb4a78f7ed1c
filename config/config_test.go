package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func testConfigYAML(t *testing.T, extra string) string {
	dir := t.TempDir()
	return `
log:
  file: "` + filepath.Join(dir, "logs", "trailmap.log") + `"
db:
  file: "` + filepath.Join(dir, "trailmap.db") + `"
` + extra
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, testConfigYAML(t, ""))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "UTC", cfg.Ingest.Timezone)
	assert.Equal(t, DuplicateAccept, cfg.Ingest.DuplicatePolicy)
	assert.False(t, cfg.Ingest.AllowUnknownCameras)
	assert.Equal(t, 3, cfg.Ingest.RetryAttempts)
	assert.Equal(t, "trailmap/detections", cfg.MQTT.Topic)
	assert.Equal(t, 0, cfg.Cleanup.RetentionDays)
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeConfig(t, testConfigYAML(t, `
server:
  port: 8080
ingest:
  timezone: "America/Chicago"
  duplicate_policy: "reject"
  api_token: "secret"
`))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "America/Chicago", cfg.Ingest.Timezone)
	assert.Equal(t, DuplicateReject, cfg.Ingest.DuplicatePolicy)
	assert.Equal(t, "secret", cfg.Ingest.APIToken)
}

func TestLoadRejectsInvalidDuplicatePolicy(t *testing.T) {
	path := writeConfig(t, testConfigYAML(t, `
ingest:
  duplicate_policy: "maybe"
`))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate_policy")
}

func TestLoadRejectsInvalidTimezone(t *testing.T) {
	path := writeConfig(t, testConfigYAML(t, `
ingest:
  timezone: "Mars/Olympus"
`))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timezone")
}

func TestLoadCreatesDirectories(t *testing.T) {
	path := writeConfig(t, testConfigYAML(t, ""))

	cfg, err := Load(path)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Dir(cfg.Log.File))
	assert.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Dir(cfg.DB.File))
	assert.NoError(t, statErr)
}
