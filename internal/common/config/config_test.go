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
	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr())
	assert.Equal(t, 10086, cfg.Pool.BasePort)
	assert.Equal(t, "127.0.0.1", cfg.Pool.BindHost)
	assert.True(t, cfg.Pool.OpenBrowser)
	assert.Equal(t, 0, cfg.Pool.BindRetries)
	assert.Equal(t, DisposeModeSync, cfg.Pool.DisposeMode)
	assert.False(t, cfg.Pool.AsyncDispose())
	assert.Equal(t, 5*time.Second, cfg.Pool.StopTimeoutDuration())
	assert.Equal(t, 8, cfg.Pool.StopConcurrency)
	assert.Zero(t, cfg.API.RateLimit)
	assert.Empty(t, cfg.NATS.URL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVERPOOL_POOL_BASE_PORT", "20000")
	t.Setenv("SERVERPOOL_POOL_DISPOSE_MODE", "async")
	t.Setenv("SERVERPOOL_POOL_OPEN_BROWSER", "false")
	t.Setenv("SERVERPOOL_SERVER_PORT", "18080")
	t.Setenv("SERVERPOOL_LOG_LEVEL", "debug")

	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 20000, cfg.Pool.BasePort)
	assert.True(t, cfg.Pool.AsyncDispose())
	assert.False(t, cfg.Pool.OpenBrowser)
	assert.Equal(t, 18080, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
pool:
  basePort: 30000
  bindRetries: 3
  stopTimeout: 2
nats:
  url: nats://127.0.0.1:4222
logging:
  format: json
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600))

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)

	assert.Equal(t, 30000, cfg.Pool.BasePort)
	assert.Equal(t, 3, cfg.Pool.BindRetries)
	assert.Equal(t, 2*time.Second, cfg.Pool.StopTimeoutDuration())
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "json", cfg.Logging.Format)
	// untouched keys keep their defaults
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("pool: [unclosed"), 0o600))

	_, err := LoadWithPath(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Host: "127.0.0.1", Port: 9999},
			Pool: PoolConfig{
				BasePort:        10086,
				BindHost:        "127.0.0.1",
				DisposeMode:     DisposeModeSync,
				StopTimeout:     5,
				StopConcurrency: 4,
			},
			Logging: LoggingConfig{Level: "info", Format: "text"},
		}
	}

	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, validate(valid()))
	})

	t.Run("reports every problem", func(t *testing.T) {
		cfg := valid()
		cfg.Pool.BasePort = 70000
		cfg.Pool.DisposeMode = "eventually"
		cfg.Logging.Level = "loud"

		err := validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pool.basePort")
		assert.Contains(t, err.Error(), "pool.disposeMode")
		assert.Contains(t, err.Error(), "logging.level")
	})

	t.Run("rate limit needs a burst", func(t *testing.T) {
		cfg := valid()
		cfg.API.RateLimit = 5
		cfg.API.RateBurst = 0

		err := validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api.rateBurst")
	})

	t.Run("async mode is case insensitive", func(t *testing.T) {
		cfg := valid()
		cfg.Pool.DisposeMode = "ASYNC"
		require.NoError(t, validate(cfg))
		assert.True(t, cfg.Pool.AsyncDispose())
	})
}
