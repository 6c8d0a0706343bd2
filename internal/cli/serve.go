package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/restyle/internal/config"
	"github.com/matzehuels/restyle/internal/server"
	"github.com/matzehuels/restyle/pkg/observability"
	"github.com/matzehuels/restyle/pkg/pipeline"
)

type serveOpts struct {
	addr  string
	trace bool
}

// serveCommand creates the "serve" command that runs the HTTP service.
func (c *CLI) serveCommand() *cobra.Command {
	var opts serveOpts

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Serve runs the restyle HTTP API.

Settings come from built-in defaults, then the --config file, then RESTYLE_*
environment variables, then flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "log every render, cache and request event")
	return cmd
}

func (c *CLI) runServe(ctx context.Context, opts serveOpts) error {
	logger := loggerFromContext(ctx)

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	// -v wins over log.level.
	if logger.GetLevel() == LogInfo {
		logger.SetLevel(cfg.LogLevel())
	}

	if opts.trace {
		hooks := observability.NewLogHooks(logger)
		observability.SetRenderHooks(hooks)
		observability.SetCacheHooks(hooks)
		observability.SetHTTPHooks(hooks)
		defer observability.Reset()
	}

	srv, err := buildServer(ctx, cfg, c)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn("close server", "err", err)
		}
	}()

	logger.Info("starting service",
		"addr", cfg.Server.Addr,
		"cache", cfg.Cache.Backend,
		"sessions", cfg.Session.Backend,
		"max_concurrent", cfg.Render.MaxConcurrent)
	return srv.Run(ctx)
}

// buildServer opens the configured backends and wires them to a server.
func buildServer(ctx context.Context, cfg *config.Config, c *CLI) (*server.Server, error) {
	artifacts, keyer, err := server.OpenCache(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	sessions, err := server.OpenSessions(ctx, cfg)
	if err != nil {
		artifacts.Close()
		return nil, fmt.Errorf("open sessions: %w", err)
	}

	runner := pipeline.NewRunner(artifacts, keyer, c.Logger,
		pipeline.WithMaxConcurrent(cfg.Render.MaxConcurrent),
		pipeline.WithArtifactTTL(cfg.Cache.TTL.Duration),
	)
	return server.New(cfg, runner, sessions, c.Logger), nil
}
