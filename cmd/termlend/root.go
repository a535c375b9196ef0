package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"termlend/config"
	"termlend/observability/logging"
	telemetry "termlend/observability/otel"
)

type rootFlags struct {
	configPath string
}

func rootCommand() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "termlend",
		Short:         "Fixed and floating rate lending ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "termlend.toml", "path to the ledger configuration")
	cmd.AddCommand(
		serveCommand(flags),
		simulateCommand(flags),
		configCommand(flags),
	)
	return cmd
}

// app bundles what every long running subcommand sets up before touching
// the ledger.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	closers  []io.Closer
	shutdown func(context.Context) error
}

func setupApp(ctx context.Context, service string, flags *rootFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	logger, logCloser := logging.SetupWithFile(service, cfg.Environment, cfg.LogLevel(), logging.FileConfig{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   true,
	})
	rt := &app{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	endpoint := strings.TrimSpace(cfg.Telemetry.Endpoint)
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	}
	rt.shutdown, err = telemetry.Init(ctx, telemetry.Config{
		ServiceName: service,
		Environment: cfg.Environment,
		Endpoint:    endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	logger.Debug("telemetry configured",
		slog.Bool("traces", cfg.Telemetry.Traces),
		slog.String("endpoint", endpoint),
		logging.MaskField("otlp_headers", cfg.Telemetry.Headers))
	return rt, nil
}

func (rt *app) Close() {
	if rt.shutdown != nil {
		if err := rt.shutdown(context.Background()); err != nil {
			rt.logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}
	for _, c := range rt.closers {
		_ = c.Close()
	}
}
