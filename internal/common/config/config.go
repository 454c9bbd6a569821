// Package config provides configuration management for serverpool.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Dispose modes accepted by pool.disposeMode.
const (
	DisposeModeSync  = "sync"
	DisposeModeAsync = "async"
)

// Config holds all configuration sections for serverpool.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Pool    PoolConfig    `mapstructure:"pool" yaml:"pool"`
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	NATS    NATSConfig    `mapstructure:"nats" yaml:"nats"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig holds the control server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host" yaml:"host"`
	Port         int    `mapstructure:"port" yaml:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout" yaml:"readTimeout"`   // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout" yaml:"writeTimeout"` // in seconds
}

// PoolConfig holds the server-instance pool configuration.
type PoolConfig struct {
	// BasePort is the first port handed out; every later instance gets a higher one.
	BasePort int `mapstructure:"basePort" yaml:"basePort"`

	// BindHost is the interface instances listen on.
	BindHost string `mapstructure:"bindHost" yaml:"bindHost"`

	// OpenBrowser opens each new instance's page in the default browser.
	OpenBrowser bool `mapstructure:"openBrowser" yaml:"openBrowser"`

	// BindRetries is how many further ports to try when a port is already in use.
	BindRetries int `mapstructure:"bindRetries" yaml:"bindRetries"`

	// DisposeMode is "sync" (acknowledge after the listener closed) or "async".
	DisposeMode string `mapstructure:"disposeMode" yaml:"disposeMode"`

	// StopTimeout bounds graceful shutdown of one instance, in seconds.
	StopTimeout int `mapstructure:"stopTimeout" yaml:"stopTimeout"`

	// StopConcurrency bounds parallel stops during dispose-all.
	StopConcurrency int `mapstructure:"stopConcurrency" yaml:"stopConcurrency"`
}

// APIConfig holds control API settings.
type APIConfig struct {
	// RateLimit is requests per second accepted by the control API; 0 disables limiting.
	RateLimit float64 `mapstructure:"rateLimit" yaml:"rateLimit"`
	RateBurst int     `mapstructure:"rateBurst" yaml:"rateBurst"`
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url" yaml:"url"`
	ClientID      string `mapstructure:"clientId" yaml:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects" yaml:"maxReconnects"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	OutputPath string `mapstructure:"outputPath" yaml:"outputPath"`
}

// Addr returns the control server listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// StopTimeoutDuration returns the per-instance stop timeout as a time.Duration.
func (p *PoolConfig) StopTimeoutDuration() time.Duration {
	return time.Duration(p.StopTimeout) * time.Second
}

// AsyncDispose reports whether disposal is fire-and-forget.
func (p *PoolConfig) AsyncDispose() bool {
	return strings.EqualFold(p.DisposeMode, DisposeModeAsync)
}

// detectDefaultLogFormat returns "json" in production environments and "text" otherwise.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("SERVERPOOL_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 9999)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("pool.basePort", 10086)
	v.SetDefault("pool.bindHost", "127.0.0.1")
	v.SetDefault("pool.openBrowser", true)
	v.SetDefault("pool.bindRetries", 0)
	v.SetDefault("pool.disposeMode", DisposeModeSync)
	v.SetDefault("pool.stopTimeout", 5)
	v.SetDefault("pool.stopConcurrency", 8)

	v.SetDefault("api.rateLimit", 0)
	v.SetDefault("api.rateBurst", 20)

	// Empty URL means use the in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "serverpool")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified directory or default locations.
// Environment variables use the prefix SERVERPOOL_, e.g. SERVERPOOL_POOL_BASEPORT.
// The config file is config.yaml in configPath, the working directory, or /etc/serverpool/.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SERVERPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not turn camelCase keys into SNAKE_CASE, so bind the
	// readable spellings explicitly.
	_ = v.BindEnv("pool.basePort", "SERVERPOOL_POOL_BASE_PORT", "SERVERPOOL_POOL_BASEPORT")
	_ = v.BindEnv("pool.bindHost", "SERVERPOOL_POOL_BIND_HOST", "SERVERPOOL_POOL_BINDHOST")
	_ = v.BindEnv("pool.openBrowser", "SERVERPOOL_POOL_OPEN_BROWSER", "SERVERPOOL_POOL_OPENBROWSER")
	_ = v.BindEnv("pool.disposeMode", "SERVERPOOL_POOL_DISPOSE_MODE", "SERVERPOOL_POOL_DISPOSEMODE")
	_ = v.BindEnv("pool.stopTimeout", "SERVERPOOL_POOL_STOP_TIMEOUT", "SERVERPOOL_POOL_STOPTIMEOUT")
	_ = v.BindEnv("logging.outputPath", "SERVERPOOL_LOG_OUTPUT", "SERVERPOOL_LOGGING_OUTPUTPATH")
	_ = v.BindEnv("logging.level", "SERVERPOOL_LOG_LEVEL", "SERVERPOOL_LOGGING_LEVEL")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/serverpool/")

	// A missing config file is fine; defaults and env still apply
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks every field and reports all problems at once.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if cfg.Pool.BasePort <= 0 || cfg.Pool.BasePort > 65535 {
		errs = append(errs, "pool.basePort must be between 1 and 65535")
	}
	if strings.TrimSpace(cfg.Pool.BindHost) == "" {
		errs = append(errs, "pool.bindHost is required")
	}
	if cfg.Pool.BindRetries < 0 {
		errs = append(errs, "pool.bindRetries must not be negative")
	}
	switch strings.ToLower(cfg.Pool.DisposeMode) {
	case DisposeModeSync, DisposeModeAsync:
	default:
		errs = append(errs, "pool.disposeMode must be one of: sync, async")
	}
	if cfg.Pool.StopTimeout <= 0 {
		errs = append(errs, "pool.stopTimeout must be positive")
	}
	if cfg.Pool.StopConcurrency <= 0 {
		errs = append(errs, "pool.stopConcurrency must be positive")
	}

	if cfg.API.RateLimit < 0 {
		errs = append(errs, "api.rateLimit must not be negative")
	}
	if cfg.API.RateLimit > 0 && cfg.API.RateBurst <= 0 {
		errs = append(errs, "api.rateBurst must be positive when api.rateLimit is set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
