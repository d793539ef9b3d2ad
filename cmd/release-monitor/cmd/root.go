// Package cmd implements the release-monitor command-line interface.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dwellir/release-monitor/internal/apperrors"
	"github.com/dwellir/release-monitor/internal/config"
	"github.com/dwellir/release-monitor/internal/metrics"
	"github.com/dwellir/release-monitor/internal/objectsource"
	"github.com/dwellir/release-monitor/internal/pipeline"
)

var (
	cfgFile     string
	once        bool
	dryRun      bool
	logLevel    string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "release-monitor",
	Short: "Poll a release bucket and deliver signed webhooks for new archives",
	Long: `release-monitor watches a bucket for new release archives, inspects each
one for its binary and genesis members, mirrors it to a WebDAV target (or
references it in place, in webhook_only mode), and delivers an HMAC-signed
webhook describing the release to a downstream filter service.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&once, "once", false, "run a single polling cycle and exit, instead of looping")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "log what would happen without uploading, delivering, or persisting state (requires --once)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve /metrics on (disabled if empty)")
	rootCmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", apperrors.ErrConfigInvalid, err)
	})
}

// Execute runs the root command and exits the process with the
// appropriate status code: 0 on success, 2 on a configuration or usage
// error (bad flags, --dry-run without --once, invalid config.yaml), and 1
// on any other runtime failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, apperrors.ErrDryRunForever) || errors.Is(err, apperrors.ErrConfigInvalid) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if dryRun && !once {
		return apperrors.ErrDryRunForever
	}

	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	if metricsAddr != "" {
		errCh := metrics.Serve(metricsAddr)
		go func() {
			if err := <-errCh; err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		logger.Info("serving metrics", "addr", metricsAddr)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := objectsource.New(ctx, cfg.GCS)
	if err != nil {
		return err
	}
	defer source.Close()

	engine := pipeline.New(cfg, source, logger)

	if once {
		return engine.RunOnce(ctx, dryRun)
	}
	return engine.RunForever(ctx, dryRun)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
