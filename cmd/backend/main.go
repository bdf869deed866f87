package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"playground-builds/internal/config"
	"playground-builds/internal/logging"
	"playground-builds/internal/server"
)

// Set at link time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "backend: %v\n", err)
		os.Exit(1)
	}
}

// options are the command-line overrides. Zero values leave the file and
// environment configuration untouched.
type options struct {
	configPath   string
	addr         string
	tempPath     string
	removalDelay time.Duration
	logLevel     string
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "backend",
		Short:         "Serve freshly built web-assembly bundles and reap them after a delay",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", os.Getenv("BUILDS_CONFIG"), "path to a YAML config file")
	flags.StringVar(&opts.addr, "addr", "", "listen address (overrides ADDR/PORT)")
	flags.StringVar(&opts.tempPath, "temp-path", "", "bundle root directory (overrides TEMP_PATH)")
	flags.DurationVar(&opts.removalDelay, "removal-delay", 0, "bundle lifetime after its index is served (overrides REMOVAL_DELAY)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log verbosity: debug, info, warn, error (overrides LOG_LEVEL)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), opts)
			},
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Remove every bundle under the bundle root once and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSweep(cmd.Context(), opts)
			},
		},
	)
	return root
}

// loadConfig resolves file, environment and flags, in that order of precedence.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.addr != "" {
		cfg.Addr = opts.addr
	}
	if opts.tempPath != "" {
		cfg.TempPath = opts.tempPath
	}
	if opts.removalDelay > 0 {
		cfg.RemovalDelayMs = opts.removalDelay.Milliseconds()
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(ctx context.Context, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.ShutdownDelaySec == 0 {
		logger.Warn("SHUTDOWN_DELAY is not set; the server will not turn off when idle")
	}

	srv, err := server.New(server.Config{
		Addr:            cfg.Addr,
		TempPath:        cfg.TempPath,
		RemovalDelay:    cfg.RemovalDelay(),
		ShutdownDelay:   cfg.ShutdownDelay(),
		ResetOnStart:    cfg.ResetOnStart,
		RootRedirect:    cfg.RootRedirect,
		CleanupInterval: cfg.CleanupInterval(),
		CleanupMaxAge:   cfg.CleanupMaxAge(),
		Build:           server.BuildInfo{Version: version, Commit: commit},
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}

	logger.Info("starting",
		zap.String("addr", cfg.Addr),
		zap.String("temp_path", cfg.TempPath),
		zap.Duration("removal_delay", cfg.RemovalDelay()),
		zap.String("version", version),
		zap.String("commit", commit),
	)
	if err := srv.Run(ctx, ln); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runSweep(ctx context.Context, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	n, err := server.SweepBundles(ctx, cfg.TempPath, time.Time{}, logger)
	if err != nil {
		return err
	}
	logger.Info("sweep complete", zap.String("path", cfg.TempPath), zap.Int("removed", n))
	return nil
}
