package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/service"
	"github.com/BrandonDHaskell/autodoor/internal/broadcast"
	"github.com/BrandonDHaskell/autodoor/internal/healthgrpc"
	"github.com/BrandonDHaskell/autodoor/internal/httpapi"
	"github.com/BrandonDHaskell/autodoor/internal/metrics"
	"github.com/BrandonDHaskell/autodoor/internal/supervisor"
)

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the door server (default command)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *cfgPath)
		},
	}
}

func runServe(parent context.Context, cfgPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, logger, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("close storage")
		}
	}()

	hub := broadcast.NewHub(st.stores.Audit, broadcast.HubConfig{AuditSensorUpdates: cfg.AuditSensorUpdates}, logger)
	if cfg.MQTTBroker != "" {
		sink, err := broadcast.NewMQTTSink(broadcast.MQTTConfig{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("mqtt sink disabled")
		} else {
			hub.AddSink(sink)
		}
	}

	m := metrics.New()
	kernel, err := service.NewKernel(ctx, st.stores, m.Instrument(hub), service.KernelConfig{
		OutboxCapacity:  cfg.OutboxCapacity,
		BreakerFailures: cfg.BreakerFailures,
		Pruner: service.PrunerConfig{
			RetentionHours:  cfg.AuditRetentionHours,
			IntervalMinutes: cfg.PruneIntervalMinutes,
		},
		PendingWrites:   st.worker.Pending,
		OnBreakerChange: m.BreakerStateChanged,
	}, logger)
	if err != nil {
		return err
	}
	hub.PrimeDoorStatus(kernel.DoorStatus())
	m.Observe(metrics.Sources{Health: kernel.Health, Hub: hub, Sensor: kernel.Sensor})

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:               logger,
		Addr:                 cfg.HTTPAddr,
		Kernel:               kernel,
		Hub:                  hub,
		Metrics:              m,
		CORSOrigins:          cfg.CORSOrigins,
		ControlRatePerMinute: cfg.ControlRatePerMinute,
	})

	tree := supervisor.NewTree(logger, supervisor.TreeConfig{})
	tree.AddCore("websocket-hub", hub)
	tree.AddCore("sensor-engine", kernel.Sensor)
	tree.AddCore("audit-pruner", kernel.Pruner)
	tree.AddAPI("http", srv)
	if cfg.GRPCAddr != "" {
		tree.AddAPI("grpc-health", healthgrpc.New(cfg.GRPCAddr, kernel.Health, 0, logger))
	}

	logger.Info().
		Str("http_addr", cfg.HTTPAddr).
		Str("grpc_addr", cfg.GRPCAddr).
		Str("db_path", cfg.DBPath).
		Str("env", cfg.Env).
		Msg("autodoor-server starting")

	err = tree.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := kernel.Shutdown(shutdownCtx); serr != nil {
		logger.Warn().Err(serr).Msg("kernel shutdown incomplete")
	}
	logger.Info().Msg("autodoor-server stopped")
	return err
}
