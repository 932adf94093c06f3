package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/faheem-arif/pii-scrubber/pkg/config"
	"github.com/faheem-arif/pii-scrubber/pkg/logging"
	"github.com/faheem-arif/pii-scrubber/pkg/metrics"
	"github.com/faheem-arif/pii-scrubber/pkg/scrub"
	"github.com/faheem-arif/pii-scrubber/pkg/server"
	"github.com/faheem-arif/pii-scrubber/pkg/storage"
)

const version = "0.1.0"

type flags struct {
	host       string
	port       int
	configPath string
	noWatch    bool
}

func main() {
	var f flags

	cmd := &cobra.Command{
		Use:           "piiscrubd",
		Short:         "piiscrub HTTP daemon",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.host, "host", "", "host to bind to (default from config)")
	cmd.Flags().IntVar(&f.port, "port", 0, "port to listen on (default from config)")
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to configuration file")
	cmd.Flags().BoolVar(&f.noWatch, "no-watch", false, "do not reload the configuration file on change")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cobra.Command, f flags) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	configPath := f.configPath
	if configPath == "" {
		var err error
		if configPath, err = config.DefaultConfigPath(); err != nil {
			return fmt.Errorf("determining config path: %w", err)
		}
	}
	projectDir, _ := os.Getwd()

	cfg, err := config.LoadFrom(configPath, projectDir)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	// Override config with command line flags
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = f.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = f.port
	}

	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	logger.Info("starting piiscrubd", "version", version, "config", configPath)

	store, err := storage.Open(cfg.Audit.Driver, cfg.Audit.Path)
	if err != nil {
		return fmt.Errorf("opening audit store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("closing audit store", "err", err)
		}
	}()
	logger.Info("audit store ready", "driver", cfg.Audit.Driver)

	srv, err := server.New(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: server.DefaultConfig().ShutdownTimeout,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
	}, scrub.NewEngine(), cfg.ScrubOptions(), store, logger)
	if err != nil {
		return err
	}
	server.Version = version

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
		srv.SetMetrics(m)
	}

	if !f.noWatch {
		watcher, err := config.NewWatcher(config.WatcherConfig{
			ConfigPath:       configPath,
			ProjectDir:       projectDir,
			DebounceInterval: config.DefaultWatcherConfig(configPath).DebounceInterval,
			OnReload: func(ctx context.Context, next *config.Config) error {
				if err := srv.SetOptions(next.ScrubOptions()); err != nil {
					return err
				}
				logger.SetLevel(logging.ParseLevel(next.Logging.Level))
				if m != nil {
					m.ConfigReloads.WithLabelValues("ok").Inc()
				}
				logger.Info("configuration reloaded", "mode", next.ScrubOptions().Mode)
				return nil
			},
			OnError: func(err error) {
				if m != nil {
					m.ConfigReloads.WithLabelValues("error").Inc()
				}
				logger.Warn("configuration reload rejected; keeping previous settings", "err", err)
			},
		})
		if err != nil {
			return fmt.Errorf("creating config watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config watcher disabled", "err", err)
		} else {
			defer watcher.Stop()
		}
	}

	if err := srv.Start(); err != nil {
		return err
	}
	logger.Info("daemon running", "addr", "http://"+srv.Addr())

	<-ctx.Done()
	logger.Info("received signal, shutting down")

	if err := srv.Stop(); err != nil {
		logger.Error("error during shutdown", "err", err)
	}

	logger.Info("daemon stopped")
	return nil
}

func newLogger(cfg *config.Config) (*log.Logger, io.Closer, error) {
	opts := logging.DefaultOptions()
	opts.Level = cfg.Logging.Level
	opts.JSON = cfg.Logging.JSON
	opts.Prefix = "piiscrubd"

	if cfg.Logging.Path == "" {
		return logging.New(opts), io.NopCloser(nil), nil
	}
	logger, closer, err := logging.NewFile(cfg.Logging.Path, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return logger, closer, nil
}
