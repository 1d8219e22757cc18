// Package config loads the esi-proxy process configuration from a YAML
// file, an optional .env file and environment variables, in increasing
// order of precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/esi-middleware/pkg/cache"
	"github.com/Sternrassler/esi-middleware/pkg/client"
	"github.com/Sternrassler/esi-middleware/pkg/logging"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// Config is the complete proxy configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	ESI    ESIConfig    `yaml:"esi"`
	Cache  CacheConfig  `yaml:"cache"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ESIConfig configures the request pipeline.
type ESIConfig struct {
	BaseURL           string        `yaml:"base_url"`
	UserAgent         string        `yaml:"user_agent"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	CooldownThreshold int           `yaml:"cooldown_threshold"`
	RateLimit         float64       `yaml:"rate_limit"`
	RateBurst         int           `yaml:"rate_burst"`
	CacheStrategy     string        `yaml:"cache_strategy"`
}

// CacheConfig selects and configures the cache store.
type CacheConfig struct {
	Backend        string `yaml:"backend"`
	RedisURL       string `yaml:"redis_url"`
	KeyPrefix      string `yaml:"key_prefix"`
	MemoryCapacity int    `yaml:"memory_capacity"`
	Disabled       bool   `yaml:"disabled"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			RequestTimeout:  60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		ESI: ESIConfig{
			BaseURL:           client.DefaultBaseURL,
			UserAgent:         "esi-middleware/0.1.0",
			Timeout:           client.DefaultTimeout,
			MaxRetries:        client.DefaultMaxRetries,
			CooldownThreshold: 10,
			CacheStrategy:     "ttl",
		},
		Cache: CacheConfig{
			Backend:        BackendRedis,
			RedisURL:       "localhost:6379",
			KeyPrefix:      cache.DefaultKeyPrefix,
			MemoryCapacity: cache.DefaultMemoryCapacity,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration. path may be empty to skip the YAML file.
// Without envFiles, a .env file in the working directory is loaded if it
// exists. Variables already set in the environment are never overwritten
// by .env files.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing YAML config: %w", err)
		}
	}

	if len(envFiles) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading .env: %w", err)
		}
	} else if err := godotenv.Load(envFiles...); err != nil {
		return Config{}, fmt.Errorf("loading env files: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	var errs []error
	parse := func(key string, fn func(string) error) {
		if v, ok := lookup(key); ok && v != "" {
			if err := fn(v); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}

	str(&c.Server.Port, "PORT")
	str(&c.ESI.BaseURL, "ESI_BASE_URL")
	str(&c.ESI.UserAgent, "ESI_USER_AGENT", "USER_AGENT")
	str(&c.ESI.CacheStrategy, "ESI_CACHE_STRATEGY")
	str(&c.Cache.Backend, "CACHE_BACKEND")
	str(&c.Cache.RedisURL, "REDIS_URL")
	str(&c.Log.Level, "LOG_LEVEL")

	parse("ESI_TIMEOUT", func(v string) (err error) {
		c.ESI.Timeout, err = time.ParseDuration(v)
		return err
	})
	parse("ESI_MAX_RETRIES", func(v string) (err error) {
		c.ESI.MaxRetries, err = strconv.Atoi(v)
		return err
	})
	parse("ESI_COOLDOWN_THRESHOLD", func(v string) (err error) {
		c.ESI.CooldownThreshold, err = strconv.Atoi(v)
		return err
	})
	parse("ESI_RATE_LIMIT", func(v string) (err error) {
		c.ESI.RateLimit, err = strconv.ParseFloat(v, 64)
		return err
	})
	parse("DISABLE_ESI_CACHE", func(v string) (err error) {
		c.Cache.Disabled, err = strconv.ParseBool(v)
		return err
	})
	parse("LOG_PRETTY", func(v string) (err error) {
		c.Log.Pretty, err = strconv.ParseBool(v)
		return err
	})

	return errors.Join(errs...)
}

// Validate checks the configuration for values the pipeline would reject.
func (c Config) Validate() error {
	if c.ESI.UserAgent == "" {
		return fmt.Errorf("esi.user_agent is required")
	}
	if _, err := client.ParseStrategy(c.ESI.CacheStrategy); err != nil {
		return fmt.Errorf("esi.cache_strategy: %w", err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	switch c.Cache.Backend {
	case BackendRedis:
		if c.Cache.RedisURL == "" && !c.Cache.Disabled {
			return fmt.Errorf("cache.redis_url is required for the redis backend")
		}
	case BackendMemory, BackendNone:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	return nil
}

// Logging returns the logging configuration.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level, _ = logging.ParseLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}

// ClientConfig returns the pipeline configuration using store as the
// default cache.
func (c Config) ClientConfig(store cache.Store) (client.Config, error) {
	strategy, err := client.ParseStrategy(c.ESI.CacheStrategy)
	if err != nil {
		return client.Config{}, err
	}

	cfg := client.DefaultConfig(c.ESI.UserAgent)
	cfg.BaseURL = c.ESI.BaseURL
	cfg.Timeout = c.ESI.Timeout
	cfg.MaxRetries = c.ESI.MaxRetries
	cfg.CooldownThreshold = c.ESI.CooldownThreshold
	cfg.RateLimit = c.ESI.RateLimit
	cfg.RateBurst = c.ESI.RateBurst
	cfg.CacheStrategy = strategy
	cfg.DisableCache = c.Cache.Disabled
	cfg.Cache = store
	return cfg, nil
}

// OpenStore creates the configured cache store. The returned close function
// is never nil. A nil store means caching is off.
func (c Config) OpenStore(ctx context.Context) (cache.Store, func() error, error) {
	noop := func() error { return nil }

	if c.Cache.Disabled {
		return nil, noop, nil
	}

	switch c.Cache.Backend {
	case BackendMemory:
		return cache.NewMemoryStore(c.Cache.MemoryCapacity), noop, nil
	case BackendNone:
		return nil, noop, nil
	}

	opts, err := redisOptions(c.Cache.RedisURL)
	if err != nil {
		return nil, noop, err
	}
	redisClient := redis.NewClient(opts)

	store := cache.NewRedisStoreWithPrefix(redisClient, c.Cache.KeyPrefix)
	if err := store.Ping(ctx); err != nil {
		redisClient.Close()
		return nil, noop, err
	}

	return store, redisClient.Close, nil
}

// redisOptions accepts both redis:// URLs and bare host:port addresses.
func redisOptions(raw string) (*redis.Options, error) {
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: raw}, nil
}
