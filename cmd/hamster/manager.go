package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/hamster/pkg/api"
	"github.com/cuemby/hamster/pkg/config"
	"github.com/cuemby/hamster/pkg/events"
	"github.com/cuemby/hamster/pkg/log"
	"github.com/cuemby/hamster/pkg/manager"
	"github.com/cuemby/hamster/pkg/metrics"
	"github.com/cuemby/hamster/pkg/provider"
	"github.com/cuemby/hamster/pkg/reconciler"
	"github.com/spf13/cobra"
)

var managerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Run a Hamster manager",
	Long: `Run the manager daemon: the provider state behind a Raft log, the epoch
reconciler, the gRPC API, the HTTP endpoints and, when brokers are
configured, the Kafka event sink.

On first start the pool is initialized from --genesis if given.`,
	RunE: runManager,
}

func init() {
	f := managerCmd.Flags()
	f.String("config", "", "Configuration file (YAML)")
	f.String("node-id", "manager-1", "Unique node ID")
	f.String("bind-addr", "127.0.0.1:7946", "Address for Raft communication")
	f.String("data-dir", "./hamster-data", "Data directory for state and Raft log")
	f.Bool("in-memory", false, "Keep all state in memory")
	f.Uint64("timeout-epochs", provider.DefaultTimeoutEpochs, "Epochs without a heartbeat before a resource or DApp is lost")
	f.Duration("epoch-interval", reconciler.DefaultInterval, "Wall-clock length of one epoch")
	f.String("genesis", "", "Genesis file loaded on first start")
	f.String("api-addr", "127.0.0.1:7070", "Address for the gRPC API")
	f.String("http-addr", "127.0.0.1:9090", "Address for health, metrics and JSON views")
	f.String("unix-socket", "", "Unix socket for read-only local access")
	f.Float64("rate-limit", 0, "Requests per second per account (0 disables)")
	f.Int("burst", 20, "Rate limit burst")
	f.StringSlice("kafka-brokers", nil, "Kafka brokers to forward events to")
	f.String("kafka-topic", "hamster.events", "Kafka topic for events")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.Bool("log-json", false, "Log as JSON")
}

func runManager(cmd *cobra.Command, args []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd)
	if err != nil {
		return err
	}

	log.Init(cfg.LogConfig())
	metrics.SetVersion(Version)
	logger := log.WithComponent("main")

	mc, err := cfg.ManagerConfig()
	if err != nil {
		return err
	}

	mgr, err := manager.NewManager(mc)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	if err := mgr.Bootstrap(); err != nil {
		_ = mgr.Shutdown()
		return fmt.Errorf("failed to bootstrap: %w", err)
	}

	var sink *events.KafkaSink
	if cfg.Kafka.Enabled {
		sink, err = events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			_ = mgr.Shutdown()
			return fmt.Errorf("failed to create kafka sink: %w", err)
		}
		sink.Start(mgr.GetEventBroker())
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Forwarding events to Kafka")
	}

	collector := manager.NewMetricsCollector(mgr)
	collector.Start()

	recon := reconciler.NewReconciler(mgr, cfg.Manager.EpochInterval)
	recon.Start()

	errCh := make(chan error, 3)

	apiServer := api.NewServer(mgr, cfg.RateLimit())
	go func() {
		if err := apiServer.Start(cfg.API.Addr); err != nil {
			errCh <- fmt.Errorf("API server error: %w", err)
		}
	}()
	if cfg.API.UnixSocket != "" {
		go func() {
			if err := apiServer.StartUnix(cfg.API.UnixSocket); err != nil {
				errCh <- fmt.Errorf("unix socket error: %w", err)
			}
		}()
	}

	httpServer := api.NewHTTPServer(mgr)
	go func() {
		if err := httpServer.Start(cfg.API.HTTPAddr); err != nil {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Str("node_id", cfg.Manager.NodeID).
		Str("api", cfg.API.Addr).
		Str("http", cfg.API.HTTPAddr).
		Dur("epoch_interval", cfg.Manager.EpochInterval).
		Uint64("timeout_epochs", mgr.TimeoutEpochs()).
		Msg("Manager is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("Server failed, shutting down")
	}

	recon.Stop()
	collector.Stop()
	apiServer.Stop()
	if err := httpServer.Stop(); err != nil {
		logger.Warn().Err(err).Msg("Failed to stop HTTP server")
	}
	if sink != nil {
		if err := sink.Stop(); err != nil {
			logger.Warn().Err(err).Msg("Failed to stop Kafka sink")
		}
	}
	if err := mgr.Shutdown(); err != nil {
		return errors.Join(runErr, fmt.Errorf("failed to shutdown: %w", err))
	}

	logger.Info().Msg("Shutdown complete")
	return runErr
}
