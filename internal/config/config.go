// Package config loads the service configuration from a TOML file with
// environment variable overrides.
//
// Precedence, lowest first: built-in defaults, the TOML file, RESTYLE_*
// environment variables, command-line flags (applied by the CLI).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
)

// Backend names.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

var (
	cacheBackends   = []string{BackendNone, BackendMemory, BackendFile, BackendRedis}
	sessionBackends = []string{BackendMemory, BackendFile, BackendRedis, BackendMongo}
)

// Config represents the root service configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Render  RenderConfig  `toml:"render"`
	Cache   CacheConfig   `toml:"cache"`
	Session SessionConfig `toml:"session"`
	Redis   RedisConfig   `toml:"redis"`
	Mongo   MongoConfig   `toml:"mongo"`
	Log     LogConfig     `toml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string   `toml:"addr"`
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	MaxUploadBytes  int64    `toml:"max_upload_bytes"`
	CORSOrigins     []string `toml:"cors_origins"`
}

// RenderConfig configures the render pipeline.
type RenderConfig struct {
	Quality       int  `toml:"quality"`
	MaxConcurrent int  `toml:"max_concurrent"`
	StrictStyles  bool `toml:"strict_styles"`
}

// CacheConfig selects the artifact cache backend.
type CacheConfig struct {
	Backend    string   `toml:"backend"`
	Dir        string   `toml:"dir"`
	TTL        Duration `toml:"ttl"`
	MaxEntries int      `toml:"max_entries"`
	KeyPrefix  string   `toml:"key_prefix"`
}

// SessionConfig selects the session store backend.
type SessionConfig struct {
	Backend         string   `toml:"backend"`
	TTL             Duration `toml:"ttl"`
	Dir             string   `toml:"dir"`
	CleanupInterval Duration `toml:"cleanup_interval"`
}

// RedisConfig is shared by the redis cache and session backends.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// MongoConfig configures the mongo session backend.
type MongoConfig struct {
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration is a time.Duration written as a string ("30s", "1h") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration{30 * time.Second},
			WriteTimeout:    Duration{60 * time.Second},
			ShutdownTimeout: Duration{15 * time.Second},
			MaxUploadBytes:  20 << 20,
		},
		Render: RenderConfig{
			Quality:       85,
			MaxConcurrent: runtime.NumCPU(),
		},
		Cache: CacheConfig{
			Backend:    BackendMemory,
			TTL:        Duration{7 * 24 * time.Hour},
			MaxEntries: 256,
		},
		Session: SessionConfig{
			Backend:         BackendMemory,
			TTL:             Duration{time.Hour},
			CleanupInterval: Duration{10 * time.Minute},
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "restyle",
			Collection: "sessions",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.loadEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode parses TOML onto cfg, rejecting unknown keys so typos surface.
func (c *Config) decode(data []byte) error {
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// Validate checks value ranges and backend names.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	if c.Server.Addr == "" {
		add("server.addr is required")
	}
	if c.Server.MaxUploadBytes <= 0 {
		add("server.max_upload_bytes must be positive")
	}
	if c.Server.ShutdownTimeout.Duration <= 0 {
		add("server.shutdown_timeout must be positive")
	}
	if c.Render.Quality < 1 || c.Render.Quality > 100 {
		add("render.quality must be between 1 and 100, got %d", c.Render.Quality)
	}
	if c.Render.MaxConcurrent < 1 {
		add("render.max_concurrent must be at least 1")
	}
	if !slices.Contains(cacheBackends, c.Cache.Backend) {
		add("cache.backend %q must be one of %s", c.Cache.Backend, strings.Join(cacheBackends, ", "))
	}
	if c.Cache.TTL.Duration < 0 {
		add("cache.ttl cannot be negative")
	}
	if !slices.Contains(sessionBackends, c.Session.Backend) {
		add("session.backend %q must be one of %s", c.Session.Backend, strings.Join(sessionBackends, ", "))
	}
	if c.Session.TTL.Duration <= 0 {
		add("session.ttl must be positive")
	}
	if c.Session.CleanupInterval.Duration <= 0 {
		add("session.cleanup_interval must be positive")
	}
	if (c.Cache.Backend == BackendRedis || c.Session.Backend == BackendRedis) && c.Redis.Addr == "" {
		add("redis.addr is required for the redis backend")
	}
	if c.Session.Backend == BackendMongo && c.Mongo.URI == "" {
		add("mongo.uri is required for the mongo backend")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		add("log.level %q is invalid", c.Log.Level)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LogLevel returns the parsed log level, defaulting to info.
func (c *Config) LogLevel() log.Level {
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// CacheDir returns the directory for the file cache backend.
func (c *Config) CacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	return DefaultCacheDir()
}

// DefaultCacheDir returns the user cache directory for restyle artifacts.
func DefaultCacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("get cache dir: %w", err)
	}
	return filepath.Join(dir, "restyle", "artifacts"), nil
}
