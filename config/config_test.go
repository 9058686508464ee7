package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvHost, EnvScheme, EnvAudio, EnvLogLevel, EnvMetricsAddr} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "", cfg.ConfigPath)
	assert.Equal(t, "ws", cfg.Server.Scheme)
	assert.Equal(t, "localhost:8000", cfg.Server.Host)
	assert.Equal(t, 5*time.Second, cfg.Server.ReconnectDelay)
	assert.Equal(t, 200*time.Millisecond, cfg.Audio.FlushInterval)
	assert.False(t, cfg.Audio.Enabled)
	assert.Equal(t, "info", cfg.Log.LogLevel)
}

func TestLoadConfigFromYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  scheme: wss
  host: agent.example.com
  reconnect_delay: 2s
audio:
  enabled: true
  flush_interval: 100ms
log:
  log_level: debug
metrics:
  addr: ":9090"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.ConfigPath)
	assert.Equal(t, "wss", cfg.Server.Scheme)
	assert.Equal(t, "agent.example.com", cfg.Server.Host)
	assert.Equal(t, 2*time.Second, cfg.Server.ReconnectDelay)
	// 未写的字段保留默认值
	assert.Equal(t, 10*time.Second, cfg.Server.HandshakeTimeout)
	assert.True(t, cfg.Audio.Enabled)
	assert.Equal(t, 100*time.Millisecond, cfg.Audio.FlushInterval)
	assert.Equal(t, 16000, cfg.Audio.InputSampleRate)
	assert.Equal(t, "debug", cfg.Log.LogLevel)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server:\n  host: from-file:1\n")
	t.Setenv(EnvHost, "from-env:2")
	t.Setenv(EnvScheme, "WSS")
	t.Setenv(EnvAudio, "true")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvMetricsAddr, "127.0.0.1:9100")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env:2", cfg.Server.Host)
	assert.Equal(t, "wss", cfg.Server.Scheme)
	assert.True(t, cfg.Audio.Enabled)
	assert.Equal(t, "warn", cfg.Log.LogLevel)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
}

func TestInvalidAudioEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAudio, "maybe")

	_, err := LoadConfig("")
	assert.ErrorContains(t, err, EnvAudio)
}

func TestEmptyEnvKeepsFileValue(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server:\n  host: from-file:1\naudio:\n  enabled: true\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file:1", cfg.Server.Host)
	assert.True(t, cfg.Audio.Enabled)
}

func TestLoadConfigBadYAML(t *testing.T) {
	clearEnv(t)
	_, err := LoadConfig(writeConfig(t, "server: [unclosed"))
	assert.ErrorContains(t, err, "解析配置文件失败")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"默认配置", func(c *Config) {}, ""},
		{"scheme", func(c *Config) { c.Server.Scheme = "http" }, "scheme"},
		{"host", func(c *Config) { c.Server.Host = " " }, "server.host"},
		{"重连间隔", func(c *Config) { c.Server.ReconnectDelay = 0 }, "server.reconnect_delay"},
		{"发送窗口", func(c *Config) { c.Audio.FlushInterval = -time.Second }, "audio.flush_interval"},
		{"采样率", func(c *Config) { c.Audio.InputSampleRate = 0 }, "audio.input_sample_rate"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.errMsg)
		})
	}
}
