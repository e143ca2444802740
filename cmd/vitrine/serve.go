package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vitrine/vitrine/config"
	"github.com/vitrine/vitrine/pkg/api"
	"github.com/vitrine/vitrine/pkg/api/handlers"
	"github.com/vitrine/vitrine/pkg/metrics"
	"github.com/vitrine/vitrine/pkg/telemetry/tracing"
	"github.com/vitrine/vitrine/pkg/version"
)

const defaultShutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket API",
		Example: `  vitrine serve
  vitrine serve --config configs/vitrine.yaml
  vitrine serve --port 9090 --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			extra := map[string]interface{}{}
			if port != 0 {
				extra["server.port"] = port
			}
			cfg, err := loadConfig(extra)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server port")
	return cmd
}

// serve runs the API until ctx is cancelled or a server fails, then shuts
// everything down within the configured shutdown timeout.
func serve(ctx context.Context, cfg *config.Config) error {
	log := newLogger(cfg)
	defer log.Close()

	log.Info("Starting Vitrine",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("Configuration loaded", "config", cfg.String())

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, tracing.Service{
		Name:        cfg.App.Name,
		Version:     version.Version,
		Environment: cfg.App.Environment,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	mm := metrics.NewManager(metrics.FromConfig(cfg.Metrics))
	connections := handlers.NewConnectionManager(cfg.Server.WebSocket.MaxConnections, mm)

	a, err := buildApp(ctx, cfg, log, mm, withObserver(connections))
	if err != nil {
		return err
	}

	apiHandlers := &api.Handlers{
		Turns:    handlers.NewTurnHandler(a.engine, log),
		Sessions: handlers.NewSessionHandler(a.engine, log),
		Health: handlers.NewHealthHandler(version.Version, a.engine, map[string]handlers.Pinger{
			"storage": a.store,
		}),
	}
	if mm.Enabled() {
		apiHandlers.Metrics = mm
	}
	if cfg.Server.WebSocket.Enabled {
		apiHandlers.WebSocket = handlers.NewWebSocketHandler(log, a.engine, connections, handlers.WebSocketConfig{
			AllowedOrigins: cfg.Server.WebSocket.AllowedOrigins,
			MaxConnections: cfg.Server.WebSocket.MaxConnections,
			PingInterval:   cfg.Server.WebSocket.PingInterval,
			TurnTimeout:    cfg.Server.HTTP.RequestTimeout,
		})
	}
	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Start()
	})

	if mm.Enabled() {
		g.Go(func() error {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := mm.StartServer(gctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, config.NewLoader(), config.WithLogger(log))
		if err != nil {
			log.Warn("Config hot reload disabled", "error", err)
		} else {
			watcher.OnChange(a.reload)
			g.Go(func() error {
				if err := watcher.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Warn("Config watcher stopped", "error", err)
				}
				return nil
			})
		}
	}

	log.Info("Vitrine is running",
		"http_port", cfg.Server.Port,
		"metrics_port", cfg.Metrics.Port,
		"storage", cfg.Storage.Type,
		"generator", cfg.Generation.Provider,
	)

	// Wait for a signal or the first server failure.
	g.Go(func() error {
		<-gctx.Done()

		timeout := cfg.Server.HTTP.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var errs []error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		log.Info("Stopping conversation engine")
		if err := a.shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		log.Error("Vitrine stopped with errors", "error", err)
		return err
	}
	log.Info("Vitrine stopped gracefully")
	return nil
}
