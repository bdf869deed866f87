package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"playground-builds/internal/logging"
)

// shutdownGrace is how long in-flight streams get to finish on shutdown.
const shutdownGrace = 5 * time.Second

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version string
	Commit  string
}

type Config struct {
	Addr string // e.g. ":3000"

	// TempPath is the root holding one directory per build id.
	TempPath string
	// RemovalDelay is how long a bundle lives after its index was served.
	RemovalDelay time.Duration
	// ShutdownDelay stops the server after this long without requests. Zero disables it.
	ShutdownDelay time.Duration
	// ResetOnStart clears leftover bundles when Run starts.
	ResetOnStart bool
	// RootRedirect is the permanent redirect target for "/", if any.
	RootRedirect string

	CleanupInterval time.Duration
	CleanupMaxAge   time.Duration

	Build  BuildInfo
	Logger *zap.Logger
}

type Server struct {
	cfg        Config
	build      BuildInfo
	logger     *zap.Logger
	metrics    *Metrics
	resolver   *PathResolver
	reaper     *Reaper
	idle       *IdleWatcher
	httpServer *http.Server
}

func New(cfg Config) (*Server, error) {
	logger := logging.Ensure(cfg.Logger)

	resolver, err := NewPathResolver(cfg.TempPath)
	if err != nil {
		return nil, err
	}
	if cfg.RemovalDelay <= 0 {
		return nil, fmt.Errorf("removal delay must be positive, got %s", cfg.RemovalDelay)
	}

	metrics := NewMetrics()
	s := &Server{
		cfg:      cfg,
		build:    cfg.Build,
		logger:   logger,
		metrics:  metrics,
		resolver: resolver,
		reaper:   NewReaper(cfg.RemovalDelay, logger.With(zap.String("service", "reaper")), metrics),
	}

	artifacts := &artifactHandler{
		resolver: resolver,
		reaper:   s.reaper,
		logger:   logger.With(zap.String("service", "artifacts")),
		metrics:  metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /build/{id}", artifacts.serveIndex)
	mux.HandleFunc("GET /build/{id}/{path...}", artifacts.serveAsset)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/details", s.HandleHealth)
	mux.HandleFunc("GET /health/live", s.HandleLive)
	mux.Handle("GET /metrics", NewPrometheusExporter(metrics, cfg.Build).Handler())
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		replyError(w, bodyNotFound, http.StatusNotFound)
	})

	// Wrap middleware: requestID -> logging -> idle -> guard -> headers -> mux
	var handler http.Handler = mux
	handler = buildHeadersMiddleware(handler)
	handler = buildPathGuard(artifacts.logger, metrics, handler)
	if cfg.ShutdownDelay > 0 {
		s.idle = NewIdleWatcher(cfg.ShutdownDelay)
		handler = s.idle.Middleware(handler)
	}
	handler = loggingMiddleware(logger.With(zap.String("service", "http")), metrics, handler)
	handler = requestIDMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler is the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Metrics exposes the live counters.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if s.cfg.RootRedirect == "" {
		replyError(w, bodyNotFound, http.StatusNotFound)
		return
	}
	http.Redirect(w, r, s.cfg.RootRedirect, http.StatusPermanentRedirect)
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
	return s.httpServer.Serve(ln)
}

// Shutdown drains in-flight requests and abandons pending reapers. Their
// bundles are cleared by the next start-up reset.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.reaper.Stop()
	s.reaper.Wait()
	return err
}

// Run prepares the bundle root, then serves on ln together with the cleanup
// job and, if configured, the idle watcher. It returns nil after a clean
// shutdown, triggered by ctx or by idleness.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	if s.cfg.ResetOnStart {
		n, err := ResetBundleRoot(ctx, s.resolver.Root(), s.logger)
		if err != nil {
			return err
		}
		s.logger.Info("bundle root reset", zap.String("path", s.resolver.Root()), zap.Int("removed", n))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.logger.Info("shutdown_complete")
		return nil
	})

	g.Go(func() error {
		StartCleanupJob(gctx, CleanupConfig{
			Interval: s.cfg.CleanupInterval,
			MaxAge:   s.cfg.CleanupMaxAge,
			Root:     s.resolver.Root(),
			Logger:   s.logger,
			Metrics:  s.metrics,
		})
		return nil
	})

	if s.idle != nil {
		g.Go(func() error {
			err := s.idle.Run(gctx)
			if errors.Is(err, ErrIdle) {
				s.logger.Info("no requests, shutting down", zap.Duration("idle", s.idle.IdleFor()))
			}
			return err
		})
	}

	err := g.Wait()
	if errors.Is(err, ErrIdle) {
		return nil
	}
	return err
}
