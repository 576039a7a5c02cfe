package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amartya2002/liveness-monitor/config"
	"github.com/amartya2002/liveness-monitor/logging"
	"github.com/amartya2002/liveness-monitor/service"
)

var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "liveness-monitor",
		Short:        "Restart a Windows service when its HTTP health check keeps failing",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the settings file (default: appsettings.json next to the executable)")
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "liveness-monitor", version)
		},
	}
}

// exitCode maps startup failures to process exit codes.
func exitCode(err error) int {
	if errors.Is(err, service.ErrUnsupportedPlatform) {
		return 2
	}
	return 1
}

func runMonitor(ctx context.Context, configPath string) error {
	searchDirs := []string{config.ExecutableDir()}
	if cwd, err := os.Getwd(); err == nil {
		searchDirs = append(searchDirs, cwd)
	}
	cfg, err := config.Load(configPath, searchDirs...)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	controller, err := service.New()
	if err != nil {
		logger.Error("Service control unavailable", zap.Error(err))
		return err
	}

	a := newApp(cfg, controller, logger, time.Now())
	hosted, err := runHosted(a)
	if hosted {
		return err
	}
	if err != nil {
		logger.Warn("Cannot detect service host, running interactively", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

func newLogger(cfg *config.Config) *zap.Logger {
	opts := []logging.Option{
		logging.WithLevel(cfg.LogLevel),
		logging.WithFormat(cfg.LogFormat),
	}
	if cfg.LogFile != "" {
		opts = append(opts, logging.LogFile(cfg.LogFile))
	}
	return logging.New(opts...)
}
