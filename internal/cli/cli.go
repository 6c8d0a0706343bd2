package cli

import (
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/restyle/internal/config"
	"github.com/matzehuels/restyle/pkg/cache"
	"github.com/matzehuels/restyle/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "restyle"

	// outputExt is the extension of every rendered file.
	outputExt = ".jpg"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// configPath is set by the persistent --config flag.
	configPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// loadConfig reads the file named by --config, or only defaults and
// environment when the flag is unset.
func (c *CLI) loadConfig() (*config.Config, error) {
	return config.Load(c.configPath)
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner for CLI use. The CLI caches to disk
// so repeated renders of the same photo are instant across invocations.
func (c *CLI) newRunner(cfg *config.Config, noCache bool) (*pipeline.Runner, error) {
	cache, err := newCache(cfg, noCache)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(cache, nil, c.Logger,
		pipeline.WithMaxConcurrent(cfg.Render.MaxConcurrent),
		pipeline.WithArtifactTTL(cfg.Cache.TTL.Duration),
	), nil
}

func newCache(cfg *config.Config, noCache bool) (cache.Cache, error) {
	if noCache || cfg.Cache.Backend == config.BackendNone {
		return cache.NewNullCache(), nil
	}
	dir, err := cacheDir(cfg)
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the artifact cache directory: cache.dir from the config,
// else the user cache directory (~/.cache/restyle/artifacts on Linux).
func cacheDir(cfg *config.Config) (string, error) {
	return cfg.CacheDir()
}
