// Package config loads engine settings from flags, CONTENTWEAVER_* environment
// variables and an optional contentweaver.yaml, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "CONTENTWEAVER"
	ConfigName = "contentweaver"
)

type CacheBackend string

const (
	CacheBackendNone   CacheBackend = "none"
	CacheBackendMemory CacheBackend = "memory"
	CacheBackendFile   CacheBackend = "file"
	CacheBackendRedis  CacheBackend = "redis"
)

type LogConfig struct {
	// Format is "text" or "json".
	Format string

	// Level is one of none, debug, info, warn, error.
	Level string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

type CacheConfig struct {
	Backend CacheBackend
	Dir     string
	Redis   RedisConfig
}

type TraceConfig struct {
	// Path of the canonical trace file; empty disables tracing.
	Path string
}

type StateConfig struct {
	// Dir holds run records; empty disables them.
	Dir string
}

type EngineConfig struct {
	// MaxConcurrency bounds concurrently running pipelines; 0 means unbounded.
	MaxConcurrency int `mapstructure:"max-concurrency"`
}

type MetricsConfig struct {
	// Addr serves /metrics when set.
	Addr string
}

type Config struct {
	Log     LogConfig
	Cache   CacheConfig
	Trace   TraceConfig
	State   StateConfig
	Engine  EngineConfig
	Metrics MetricsConfig
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Cache: CacheConfig{
			Backend: CacheBackendNone,
			Dir:     ".contentweaver/cache",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "contentweaver:cache:",
			},
		},
		State: StateConfig{
			Dir: ".contentweaver",
		},
	}
}

// Verify checks the settings for consistency.
func (c *Config) Verify() error {
	var errs []error
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	switch c.Log.Level {
	case "none", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not supported", c.Log.Level))
	}
	switch c.Cache.Backend {
	case CacheBackendNone, CacheBackendMemory:
	case CacheBackendFile:
		if strings.TrimSpace(c.Cache.Dir) == "" {
			errs = append(errs, errors.New("cache.dir is required for the file cache backend"))
		}
	case CacheBackendRedis:
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			errs = append(errs, errors.New("cache.redis.addr is required for the redis cache backend"))
		}
		if c.Cache.Redis.TTL < 0 {
			errs = append(errs, errors.New("cache.redis.ttl must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not one of none, memory, file, redis", c.Cache.Backend))
	}
	if c.Engine.MaxConcurrency < 0 {
		errs = append(errs, errors.New("engine.max-concurrency must not be negative"))
	}
	return errors.Join(errs...)
}

// NewViper returns a viper instance that reads CONTENTWEAVER_* variables and
// looks for contentweaver.yaml in /etc/contentweaver, $HOME/.contentweaver
// and the working directory.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, path := range []string{"/etc/contentweaver", "$HOME/.contentweaver", "."} {
		v.AddConfigPath(path)
	}
	return v
}

// Read loads the configuration visible to v and verifies it. A missing config
// file is not an error.
func Read(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	setDefaults(v, cfg)

	v.SetTypeByDefaultValue(true)
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Verify(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so environment variables and config file
// values reach Unmarshal even when no flag is bound.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("cache.backend", string(cfg.Cache.Backend))
	v.SetDefault("cache.dir", cfg.Cache.Dir)
	v.SetDefault("cache.redis.addr", cfg.Cache.Redis.Addr)
	v.SetDefault("cache.redis.password", cfg.Cache.Redis.Password)
	v.SetDefault("cache.redis.db", cfg.Cache.Redis.DB)
	v.SetDefault("cache.redis.prefix", cfg.Cache.Redis.Prefix)
	v.SetDefault("cache.redis.ttl", cfg.Cache.Redis.TTL)
	v.SetDefault("trace.path", cfg.Trace.Path)
	v.SetDefault("state.dir", cfg.State.Dir)
	v.SetDefault("engine.max-concurrency", cfg.Engine.MaxConcurrency)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
}
