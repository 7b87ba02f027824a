package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/CreativeUnicorns/leafprefs"
	"github.com/CreativeUnicorns/leafprefs/api"
	"github.com/CreativeUnicorns/leafprefs/bus"
	"github.com/CreativeUnicorns/leafprefs/host"
	"github.com/CreativeUnicorns/leafprefs/storage"
)

const shutdownTimeout = 30 * time.Second

// serveCmd runs the host until interrupted
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the preference host",
		Long: `Run the preference host.

The host answers value requests and collects leaf logs on the configured bus.
With the hub bus, leaves connect over WebSocket at /api/v1/bus. The HTTP API
also serves /api/v1/containers and /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runHost(ctx)
		},
	}
}

func runHost(ctx context.Context) error {
	store, err := host.OpenStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	metrics := host.NewMetrics()
	b, err := host.OpenBus(cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to open bus: %w", err)
	}
	defer b.Close()

	responder := host.NewResponder(store, b, logger, metrics)
	if err := responder.Start(); err != nil {
		return fmt.Errorf("failed to start responder: %w", err)
	}
	defer responder.Stop()

	var relay *host.ChangeRelay
	if cfg.Storage.Watch {
		files, ok := store.(*storage.FileStorage)
		if !ok {
			return fmt.Errorf("storage.watch needs the file backend, got %T", store)
		}
		watcher, err := storage.NewFileWatcher(files)
		if err != nil {
			return err
		}
		defer watcher.Close()
		relay = host.NewChangeRelay(watcher, b, logger, metrics)
		if err := relay.Attach(); err != nil {
			return err
		}
	}

	manager := leafprefs.New(
		leafprefs.WithStorage(store),
		leafprefs.WithBus(b),
		leafprefs.WithLogger(logger),
	)
	apiCfg := api.Config{
		ListenAddress:  cfg.Server.ListenAddress,
		Manager:        manager,
		Logger:         logger,
		Metrics:        metrics,
		PublishOnWrite: true,
	}
	if hub, ok := b.(*bus.Hub); ok {
		apiCfg.Hub = hub
	}
	server, err := api.NewServer(apiCfg)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	logger.Info("host starting",
		"storage", cfg.Storage.Backend,
		"bus", cfg.Bus.Backend,
		"listen", cfg.Server.ListenAddress,
		"watch", relay != nil,
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	if relay != nil {
		g.Go(func() error { return relay.Run(gCtx) })
	}
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("host exited gracefully")
	return nil
}
