package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/fitroom-server/internal/app"
	"github.com/vovakirdan/fitroom-server/internal/config"
	"github.com/vovakirdan/fitroom-server/internal/log"
	"github.com/vovakirdan/fitroom-server/internal/proto"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type serveFlags struct {
	configPath string
	overrides  config.Config
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fitroom-server",
		Short:         "Workout room coordination server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "path to config file (default $FITROOM_CONFIG_DEFAULT_PATH/config.yaml or ./config.yaml)")
	f.StringVar(&flags.overrides.Addr, "addr", "", "HTTP listen address")
	f.StringVar(&flags.overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVar(&flags.overrides.DatabasePath, "db", "", "SQLite database path")
	f.StringVar(&flags.overrides.Fanout.Backend, "fanout", "", "fanout backend (local or redis)")
	f.DurationVar(&flags.overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	f.DurationVar(&flags.overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	return cmd
}

func serve(ctx context.Context, flags serveFlags) error {
	bootLogger := log.New(flags.overrides.LogLevel)

	cfg, path, err := config.Load(bootLogger, flags.configPath)
	if err != nil {
		return err
	}
	cfg.UpdateFrom(flags.overrides)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := log.New(cfg.LogLevel)
	logger.Info().Str("config", path).Str("version", version).Msg("configuration loaded")
	if cfg.JWTSecret == config.Default().JWTSecret {
		logger.Warn().Msg("jwt_secret is the default value, set FITROOM_JWT_SECRET in production")
	}

	application, err := app.New(&cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting fitroom server")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server and protocol version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fitroom-server %s (protocol %d)\n", version, proto.ProtocolVersion)
		},
	}
}
