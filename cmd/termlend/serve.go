package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"termlend/core/ledger"
	"termlend/gateway/middleware"
	"termlend/gateway/routes"
)

func serveCommand(flags *rootFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only market and account preview API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := setupApp(ctx, "termlend-gateway", flags)
			if err != nil {
				return err
			}
			defer rt.Close()
			if listen != "" {
				rt.cfg.Gateway.ListenAddress = listen
			}

			l, err := ledger.Deploy(rt.cfg, ledger.Options{Logger: rt.logger})
			if err != nil {
				return err
			}
			defer l.Close()
			return serve(ctx, rt, l)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "override the gateway listen address")
	return cmd
}

func serve(ctx context.Context, rt *app, l *ledger.Ledger) error {
	gw := rt.cfg.Gateway
	limit := middleware.RateLimit{RatePerSecond: gw.RateLimitPerSecond, Burst: gw.RateLimitBurst}
	limiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
		routes.RouteMarkets:  limit,
		routes.RouteAccounts: limit,
	}, rt.logger)
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: "termlend-gateway",
		LogRequests: rt.cfg.LogLevel() <= slog.LevelDebug,
		Enabled:     true,
	}, rt.logger)

	handler, err := routes.New(routes.Config{Ledger: l, RateLimiter: limiter, Observability: obs})
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              gw.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("gateway listening", slog.String("address", gw.ListenAddress))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rt.logger.Info("gateway shutting down")
	return server.Shutdown(shutdownCtx)
}
