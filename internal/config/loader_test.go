package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
server:
  port: 9090
  mode: debug
log:
  level: debug
  format: console
llm:
  enabled: true
  api_key: "sk-test"
  model: "claude-test"
  max_tokens: 1024
  temperature: 0.2
  timeout: 30s
web_service:
  enabled: true
  base_url: "http://predictor.local/api"
  timeout: 5s
  max_retries: 1
local_db:
  path: "/var/lib/shiftscope/shifts.db"
redis:
  enabled: true
  addr: "cache:6379"
  prediction_ttl: 1h
nmr:
  max_smiles_length: 200
  nuclei:
    1H:
      tolerance: 0.02
    19F:
      min_shift: -250
      max_shift: 50
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FromFile_ValidConfig(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, "http://predictor.local/api", cfg.WebService.BaseURL)
	assert.Equal(t, 1, cfg.WebService.MaxRetries)
	assert.Equal(t, "/var/lib/shiftscope/shifts.db", cfg.LocalDB.Path)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Hour, cfg.Redis.PredictionTTL)
	assert.Equal(t, 200, cfg.NMR.MaxSMILESLength)

	h, ok := cfg.NMR.Override("1H")
	require.True(t, ok)
	require.NotNil(t, h.Tolerance)
	assert.InDelta(t, 0.02, *h.Tolerance, 1e-9)
	assert.Nil(t, h.MinShift)

	f, ok := cfg.NMR.Override("19F")
	require.True(t, ok)
	require.NotNil(t, f.MinShift)
	assert.InDelta(t, -250, *f.MinShift, 1e-9)

	_, ok = cfg.NMR.Override("31P")
	assert.False(t, ok)
}

func TestLoad_DefaultsFillGaps(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, "server:\n  port: 8081\n"))
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, DefaultServerMode, cfg.Server.Mode)
	assert.Equal(t, DefaultLLMModel, cfg.LLM.Model)
	assert.True(t, cfg.LLM.Enabled)
	assert.True(t, cfg.WebService.Enabled)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, DefaultMaxSMILESLength, cfg.NMR.MaxSMILESLength)
	assert.Equal(t, DefaultPredictionTTL, cfg.Redis.PredictionTTL)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "server: [\n"))
	assert.ErrorIs(t, err, ErrConfigParse)
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "server:\n  port: 70000\n"))
	assert.ErrorIs(t, err, ErrConfigValidation)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SHIFTSCOPE_SERVER_PORT", "9999")
	t.Setenv("SHIFTSCOPE_LLM_API_KEY", "sk-env")

	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
}

func TestLoadFromEnv_NoFile(t *testing.T) {
	t.Setenv("SHIFTSCOPE_WEB_SERVICE_ENABLED", "false")
	t.Setenv("SHIFTSCOPE_LOCAL_DB_PATH", "/tmp/shifts.db")
	t.Setenv("SHIFTSCOPE_LLM_TIMEOUT", "45s")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.WebService.Enabled)
	assert.Equal(t, "/tmp/shifts.db", cfg.LocalDB.Path)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
}

func TestLoad_EmptyPathUsesEnv(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
}

func TestMustLoad_PanicsOnError(t *testing.T) {
	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "missing.yaml")) })
}

func TestWatch_InvokesCallbackOnChange(t *testing.T) {
	path := createTempConfigFile(t, "log:\n  level: info\n")

	changed := make(chan *Config, 4)
	require.NoError(t, Watch(path, func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	}, nil))

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	select {
	case cfg := <-changed:
		assert.Equal(t, "debug", cfg.Log.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}
}

func TestWatch_MissingFile(t *testing.T) {
	err := Watch(filepath.Join(t.TempDir(), "missing.yaml"), func(*Config) {}, nil)
	assert.ErrorIs(t, err, ErrConfigParse)
}
