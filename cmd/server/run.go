package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/remoteconfig/internal/api"
	appconfig "github.com/vitaliisemenov/remoteconfig/internal/config"
	"github.com/vitaliisemenov/remoteconfig/internal/discovery/k8s"
	"github.com/vitaliisemenov/remoteconfig/internal/realtime"
	"github.com/vitaliisemenov/remoteconfig/internal/remoteconfig"
	"github.com/vitaliisemenov/remoteconfig/pkg/logger"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the refresh engine and admin HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
}

func run(ctx context.Context) error {
	cfg, err := appconfig.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.NewLogger(cfg.Log.LoggerConfig())
	slog.SetDefault(log)

	log.Info("starting remoteconfig-server", "version", version, "environment", cfg.App.Environment)

	eventBus := realtime.NewEventBus(log, realtime.NewRealtimeMetrics("remoteconfig"))

	opts := remoteconfig.Options{
		Endpoints:             cfg.RemoteConfig.Endpoints,
		ConnectionStrings:     cfg.RemoteConfig.ConnectionStrings,
		Selectors:             cfg.RemoteConfig.ResolvedSelectors(),
		ChangeWatchers:        cfg.RemoteConfig.Watchers(),
		StartupTimeout:        cfg.RemoteConfig.StartupTimeout,
		PushNotificationRate:  cfg.Push.RatePerSecond,
		PushNotificationBurst: cfg.Push.Burst,
		ClientFor:             remoteconfig.NewHTTPClientFor(nil),
		Logger:                logger.Component(log, "remoteconfig_provider"),
	}

	if cfg.Discovery.Enabled {
		discoveryConfig := k8s.DefaultEndpointClientConfig()
		discoveryConfig.Logger = logger.Component(log, "replica_discovery")
		endpointClient, err := k8s.NewEndpointClient(discoveryConfig)
		if err != nil {
			return fmt.Errorf("creating k8s endpoint client: %w", err)
		}
		opts.Discovery = endpointClient
		opts.DiscoveryNamespace = cfg.Discovery.Namespace
		opts.DiscoveryServiceName = cfg.Discovery.ServiceName
		opts.DiscoveryInterval = cfg.Discovery.Interval
	}

	provider, err := remoteconfig.New(ctx, opts, !cfg.RemoteConfig.Required)
	if err != nil {
		return fmt.Errorf("initializing remoteconfig provider: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := eventBus.Start(runCtx); err != nil {
		return fmt.Errorf("starting event bus: %w", err)
	}

	if cfg.Discovery.Enabled {
		go func() {
			if err := provider.RunDiscovery(runCtx); err != nil && runCtx.Err() == nil {
				log.Error("replica discovery stopped", "error", err)
			}
		}()
	}

	if cfg.Push.Enabled {
		relayClient := redis.NewClient(&redis.Options{Addr: cfg.Push.RedisAddr})
		defer relayClient.Close()
		relay := remoteconfig.NewRedisPushRelay(relayClient, cfg.Push.Channel, provider.PushIntake(), logger.Component(log, "push_relay"))
		go func() {
			if err := relay.Run(runCtx); err != nil && runCtx.Err() == nil {
				log.Error("push relay stopped", "error", err)
			}
		}()
	}

	router := api.NewRouter(api.DefaultRouterConfig(provider, eventBus, log))
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("admin HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin HTTP server failed", "error", err)
		}
	}()

	<-quit
	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Warn("event bus did not stop cleanly", "error", err)
	}

	log.Info("server exited")
	return nil
}
