// Package config resolves the runtime configuration of the edge proxy and the
// shell gateway from environment variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/Sternrassler/fairway-edge/pkg/edgeproxy"
	"github.com/Sternrassler/fairway-edge/pkg/version"
)

// DefaultUpstreamOrigin is used when UPSTREAM_ORIGIN is unset.
const DefaultUpstreamOrigin = edgeproxy.DefaultUpstreamOrigin

// Supported shell storage backends.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageBolt   = "bolt"
	StorageSQLite = "sqlite"
)

// Config is resolved once at startup and treated as immutable afterwards.
type Config struct {
	// Edge proxy
	Port            int           `mapstructure:"PORT"`
	UpstreamOrigin  string        `mapstructure:"UPSTREAM_ORIGIN"`
	UpstreamTimeout time.Duration `mapstructure:"UPSTREAM_TIMEOUT"`

	// Logging
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`
	LogFile   string `mapstructure:"LOG_FILE"`

	// Offline shell
	ShellDir         string `mapstructure:"SHELL_DIR"`
	ShellOrigin      string `mapstructure:"SHELL_ORIGIN"`
	ShellStorage     string `mapstructure:"SHELL_STORAGE"`
	ShellStoragePath string `mapstructure:"SHELL_STORAGE_PATH"`
	ShellVersion     string `mapstructure:"SHELL_VERSION"`
	ShellSkipWaiting bool   `mapstructure:"SHELL_SKIP_WAITING"`
	GatewayPort      int    `mapstructure:"GATEWAY_PORT"`

	// RedisURL backs SHELL_STORAGE=redis.
	RedisURL string `mapstructure:"REDIS_URL"`
}

// Load reads configuration from the environment and, when path is not empty,
// from the given config file. Environment variables take precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.UpstreamOrigin = strings.TrimRight(strings.TrimSpace(cfg.UpstreamOrigin), "/")
	if cfg.UpstreamOrigin == "" {
		cfg.UpstreamOrigin = DefaultUpstreamOrigin
	}
	cfg.ShellStorage = strings.ToLower(strings.TrimSpace(cfg.ShellStorage))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("UPSTREAM_ORIGIN", DefaultUpstreamOrigin)
	v.SetDefault("UPSTREAM_TIMEOUT", "0s")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("SHELL_DIR", "")
	v.SetDefault("SHELL_ORIGIN", "http://localhost:8080")
	v.SetDefault("SHELL_STORAGE", StorageMemory)
	v.SetDefault("SHELL_STORAGE_PATH", "shell-cache.db")
	v.SetDefault("SHELL_VERSION", version.ShellVersion)
	v.SetDefault("SHELL_SKIP_WAITING", true)
	v.SetDefault("GATEWAY_PORT", 8081)
}

// Validate rejects configurations the binaries cannot start with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return newFieldError("PORT", "must be between 1 and 65535")
	}
	if c.GatewayPort <= 0 || c.GatewayPort > 65535 {
		return newFieldError("GATEWAY_PORT", "must be between 1 and 65535")
	}
	if err := validateOrigin("UPSTREAM_ORIGIN", c.UpstreamOrigin); err != nil {
		return err
	}
	if err := validateOrigin("SHELL_ORIGIN", c.ShellOrigin); err != nil {
		return err
	}
	if c.UpstreamTimeout < 0 {
		return newFieldError("UPSTREAM_TIMEOUT", "must not be negative")
	}
	if strings.TrimSpace(c.ShellVersion) == "" {
		return newFieldError("SHELL_VERSION", "must not be empty")
	}

	switch c.ShellStorage {
	case StorageMemory, StorageBolt, StorageSQLite:
	case StorageRedis:
		if c.RedisURL == "" {
			return newFieldError("REDIS_URL", "required when SHELL_STORAGE=redis")
		}
	default:
		return newFieldError("SHELL_STORAGE", "must be one of memory|redis|bolt|sqlite")
	}
	return nil
}

// RedisOptions parses REDIS_URL. Both redis:// URLs and plain host:port
// addresses are accepted.
func (c *Config) RedisOptions() (*redis.Options, error) {
	if c.RedisURL == "" {
		return nil, newFieldError("REDIS_URL", "not set")
	}
	if strings.Contains(c.RedisURL, "://") {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, newFieldError("REDIS_URL", err.Error())
		}
		return opts, nil
	}
	return &redis.Options{Addr: c.RedisURL}, nil
}

func validateOrigin(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return newFieldError(field, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return newFieldError(field, "scheme must be http or https")
	}
	if u.Host == "" {
		return newFieldError(field, "host is required")
	}
	return nil
}

// durationDecodeHook accepts Go duration strings as well as plain seconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	target := reflect.TypeOf(time.Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != target {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			raw := strings.TrimSpace(v)
			if raw == "" {
				return time.Duration(0), nil
			}
			if d, err := time.ParseDuration(raw); err == nil {
				return d, nil
			}
			if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
				return time.Duration(seconds * float64(time.Second)), nil
			}
			return nil, fmt.Errorf("invalid duration %q", v)
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		default:
			return data, nil
		}
	}
}
