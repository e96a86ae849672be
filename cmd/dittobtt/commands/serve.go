package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittobtt/internal/logger"
	"github.com/marmos91/dittobtt/internal/telemetry"
	"github.com/marmos91/dittobtt/pkg/api"
	"github.com/marmos91/dittobtt/pkg/config"
	"github.com/marmos91/dittobtt/pkg/metrics"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/dittobtt/pkg/metrics/prometheus"
)

var serveNoWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the device over HTTP",
	Long: `Attach the configured device and serve it over the HTTP API.

The server exposes health probes, device geometry, sector reads and writes,
consistency checks and, when metrics are enabled, Prometheus metrics at
/metrics. Changes to logging.level in the config file take effect without a
restart.

Examples:
  # Serve with the default config
  dittobtt serve

  # Serve with a custom config file
  dittobtt serve --config /etc/dittobtt/config.yaml

  # Override settings through the environment
  DITTOBTT_LOGGING_LEVEL=DEBUG DITTOBTT_API_PORT=9080 dittobtt serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not reload the log level when the config file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tcfg := telemetry.DefaultConfig()
	tcfg.Enabled = cfg.Telemetry.Enabled
	tcfg.ServiceVersion = Version
	if cfg.Telemetry.Endpoint != "" {
		tcfg.Endpoint = cfg.Telemetry.Endpoint
	}
	tcfg.Insecure = cfg.Telemetry.Insecure
	tcfg.SampleRate = cfg.Telemetry.SampleRate

	telemetryShutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		// ctx is cancelled by now; flush with a fresh one.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", logger.KeyError, err)
		}
	}()

	pcfg := telemetry.DefaultProfilingConfig()
	pcfg.Enabled = cfg.Telemetry.Profiling.Enabled
	pcfg.ServiceVersion = Version
	if cfg.Telemetry.Profiling.Endpoint != "" {
		pcfg.Endpoint = cfg.Telemetry.Profiling.Endpoint
	}
	if len(cfg.Telemetry.Profiling.ProfileTypes) > 0 {
		pcfg.ProfileTypes = cfg.Telemetry.Profiling.ProfileTypes
	}
	pcfg.LockSampleRate = cfg.Telemetry.Profiling.LockSampleRate

	profilingShutdown, err := telemetry.InitProfiling(pcfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.KeyError, err)
		}
	}()

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	logger.Info("Telemetry", "enabled", telemetry.IsEnabled(), "profiling", telemetry.IsProfilingEnabled(), "metrics", metrics.IsEnabled())

	dev, err := openDevice(cfg, false)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			logger.Error("device close error", logger.KeyError, err)
		}
	}()

	logger.Info("Device attached",
		logger.KeyUUID, dev.UUID().String(),
		"state", dev.State().String(),
		logger.KeyNLBA, dev.NumLBA(),
		logger.KeyLBASize, dev.LBASize(),
		logger.KeyStoreType, cfg.Store.Type,
	)

	server := api.NewServer(cfg.API, dev, cfg.Metrics.Enabled)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})

	if path := watchedConfigPath(); path != "" && !serveNoWatch {
		g.Go(func() error {
			return config.Watch(gctx, path, func(next *config.Config) {
				if next.Logging.Level != logger.GetLevel().String() {
					logger.Info("Log level changed", "from", logger.GetLevel().String(), "to", next.Logging.Level)
					logger.SetLevel(next.Logging.Level)
				}
			})
		})
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", logger.KeyError, err)
		return err
	}
	logger.Info("Server stopped")
	return nil
}

// watchedConfigPath is the file serve reloads, or "" when running on
// defaults alone.
func watchedConfigPath() string {
	if f := GetConfigFile(); f != "" {
		return f
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return ""
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
