// Package server exposes the restyle renderer and the interactive session
// flow over HTTP.
//
// # Endpoints
//
//	GET    /healthz                          liveness and version
//	GET    /api/v1/styles                    available styles and overlays
//	POST   /api/v1/render                    one-shot render, returns JPEG
//	POST   /api/v1/sessions                  create a session
//	GET    /api/v1/sessions/{id}             session metadata
//	PUT    /api/v1/sessions/{id}/source      upload the room photo
//	GET    /api/v1/sessions/{id}/source      uploaded photo
//	POST   /api/v1/sessions/{id}/generate    render the photo in a style
//	GET    /api/v1/sessions/{id}/result      download generated.jpg
//	POST   /api/v1/sessions/{id}/reset       clear photo and result
//	DELETE /api/v1/sessions/{id}             drop the session
//
// Errors are JSON bodies of the form {"error":{"code":...,"message":...}}
// with the status from [errors.HTTPStatus].
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/restyle/internal/config"
	"github.com/matzehuels/restyle/pkg/pipeline"
	"github.com/matzehuels/restyle/pkg/session"
)

// Server owns the router and the collaborators the handlers use.
type Server struct {
	cfg      *config.Config
	runner   *pipeline.Runner
	sessions session.Store
	logger   *log.Logger
	router   chi.Router
}

// New builds a server. A nil logger uses the charm default logger.
func New(cfg *config.Config, runner *pipeline.Runner, sessions session.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		cfg:      cfg,
		runner:   runner,
		sessions: sessions,
		logger:   logger,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully within the configured shutdown timeout. Expired sessions are
// swept in the background while serving.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout.Duration,
		WriteTimeout: s.cfg.Server.WriteTimeout.Duration,
	}

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go s.cleanupLoop(cleanupCtx, s.cfg.Session.CleanupInterval.Duration)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout.Duration)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server shutdown complete")
	return nil
}

func (s *Server) cleanupLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sessions.Cleanup(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("session cleanup failed", "err", err)
			}
		}
	}
}

// Close releases the runner's cache and the session store.
func (s *Server) Close() error {
	return errors.Join(s.runner.Close(), s.sessions.Close())
}
