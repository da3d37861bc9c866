// Package config loads repo-search configuration.
//
// Sources, lowest to highest precedence:
//  1. Built-in defaults (DefaultConfig)
//  2. YAML configuration file
//  3. Environment variables
//  4. Command-line flags (applied by the caller)
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/repo-backfill/pkg/logging"
	"github.com/Sternrassler/repo-backfill/pkg/pagination"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// MaxRemotePageSize is the largest per_page GitHub search accepts.
const MaxRemotePageSize = 100

// Config is the complete repo-search configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	GitHub GitHubConfig `yaml:"github"`
	Redis  RedisConfig  `yaml:"redis"`
	Store  StoreConfig  `yaml:"store"`
	Paging PagingConfig `yaml:"paging"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port string `yaml:"port"`

	// MaxSessions bounds the session registry. The least recently used
	// session is evicted and cancelled when it is full.
	MaxSessions int `yaml:"max_sessions"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// GitHubConfig configures the remote search source.
type GitHubConfig struct {
	APIURL    string        `yaml:"api_url"`
	Token     string        `yaml:"token"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RedisConfig configures the optional response cache and shared rate-limit
// state. An empty URL disables both.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// StoreConfig configures the local store. An empty DatabaseURL selects the
// in-memory store.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url"`
	WriteQueue  int    `yaml:"write_queue"`
}

// PagingConfig holds the local and remote page sizes.
type PagingConfig struct {
	LocalPageSize  int `yaml:"local_page_size"`
	RemotePageSize int `yaml:"remote_page_size"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			MaxSessions:     1024,
			ShutdownTimeout: 10 * time.Second,
		},
		GitHub: GitHubConfig{
			APIURL:    "https://api.github.com",
			UserAgent: "repo-search/0.1.0",
			Timeout:   30 * time.Second,
		},
		Store: StoreConfig{
			WriteQueue: 64,
		},
		Paging: PagingConfig{
			LocalPageSize:  pagination.LocalPageSize,
			RemotePageSize: pagination.RemotePageSize,
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	cfg.GitHub.Token = getEnv("GITHUB_TOKEN", cfg.GitHub.Token)
	cfg.GitHub.APIURL = getEnv("GITHUB_API_URL", cfg.GitHub.APIURL)
	cfg.GitHub.UserAgent = getEnv("USER_AGENT", cfg.GitHub.UserAgent)
	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)
	cfg.Store.DatabaseURL = getEnv("DATABASE_URL", cfg.Store.DatabaseURL)
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	if v := os.Getenv("LOCAL_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse LOCAL_PAGE_SIZE: %w", err)
		}
		cfg.Paging.LocalPageSize = n
	}
	if v := os.Getenv("REMOTE_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse REMOTE_PAGE_SIZE: %w", err)
		}
		cfg.Paging.RemotePageSize = n
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Validate checks the configuration for values the services cannot run with.
func (c *Config) Validate() error {
	if c.Paging.LocalPageSize <= 0 {
		return fmt.Errorf("paging.local_page_size must be > 0 (got %d)", c.Paging.LocalPageSize)
	}
	if c.Paging.RemotePageSize <= 0 || c.Paging.RemotePageSize > MaxRemotePageSize {
		return fmt.Errorf("paging.remote_page_size must be between 1 and %d (got %d)",
			MaxRemotePageSize, c.Paging.RemotePageSize)
	}

	u, err := url.Parse(c.GitHub.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("github.api_url must be an http(s) URL (got %q)", c.GitHub.APIURL)
	}
	if strings.TrimSpace(c.GitHub.UserAgent) == "" {
		return fmt.Errorf("github.user_agent is required")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	if c.Server.MaxSessions <= 0 {
		return fmt.Errorf("server.max_sessions must be > 0 (got %d)", c.Server.MaxSessions)
	}
	if c.Redis.URL != "" {
		if _, err := c.RedisOptions(); err != nil {
			return err
		}
	}
	return nil
}

// RedisOptions returns go-redis options for Redis.URL. Both redis:// URLs
// and plain host:port addresses are accepted.
func (c *Config) RedisOptions() (*redis.Options, error) {
	if c.Redis.URL == "" {
		return nil, fmt.Errorf("redis.url is empty")
	}
	if strings.Contains(c.Redis.URL, "://") {
		opts, err := redis.ParseURL(c.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("redis.url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: c.Redis.URL}, nil
}

// LoggingConfig converts the log section for logging.Setup.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Log.Level); err == nil {
		cfg.Level = level
	}
	cfg.Pretty = c.Log.Pretty
	return cfg
}
