package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yairfalse/vigil/internal/api"
	"github.com/yairfalse/vigil/internal/config"
	"github.com/yairfalse/vigil/internal/monitoring/engine"
	"github.com/yairfalse/vigil/internal/monitoring/thresholds"
	"github.com/yairfalse/vigil/internal/provider"
	"github.com/yairfalse/vigil/internal/sinks"
	"github.com/yairfalse/vigil/internal/telemetry"
	"github.com/yairfalse/vigil/pkg/domain"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring engine and HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.App.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.App.LogLevel = logLevel
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting vigil",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tel, err := telemetry.New(registry, telemetry.Config{
		Version:     cfg.App.Version,
		Environment: cfg.App.Environment,
	})
	if err != nil {
		return err
	}
	var sd shutdown
	defer sd.run()

	tel.SetGlobal()
	sd.add(phaseTelemetry, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	})

	prov, counters, closeProbe, err := buildProvider(cfg, logger)
	if err != nil {
		return err
	}
	sd.add(phaseSources, closeProbe)

	eng, err := engine.New(engine.Config{
		HistoryCapacity:   cfg.Monitoring.HistoryCapacity,
		AlertCapacity:     cfg.Monitoring.AlertCapacity,
		SuppressionWindow: cfg.Monitoring.SuppressionWindow,
		DispatchQueueSize: cfg.Monitoring.DispatchQueueSize,
		Thresholds:        cfg.Thresholds,
		Authorize:         domain.RoleAuthorizer(domain.RoleAdmin),
		Logger:            logger.Named("engine"),
	}, prov, counters)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	sd.add(phaseEngine, eng.Close)

	promSink := sinks.NewPrometheusSink(registry)
	eventSinks := []sinks.Sink{sinks.NewLoggingSink(logger.Named("events")), promSink}

	if cfg.NATS.Enabled {
		nc, err := sinks.ConnectNATS(sinks.NATSConfig{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		}, logger.Named("nats"))
		if err != nil {
			return err
		}
		sd.add(phaseSinks, func() {
			if err := nc.Drain(); err != nil {
				logger.Warn("Failed to drain NATS connection", zap.Error(err))
			}
		})
		eventSinks = append(eventSinks, sinks.NewNATSSink(nc, cfg.NATS.SubjectPrefix, logger.Named("nats")))
	}

	if _, err := sinks.Attach(eng, eventSinks...); err != nil {
		return err
	}

	if cfg.Monitoring.ThresholdsFile != "" {
		watcher := thresholds.NewWatcher(cfg.Monitoring.ThresholdsFile, eng.ThresholdManager(), logger.Named("thresholds"))
		if err := watcher.Start(); err != nil {
			return err
		}
		sd.add(phaseInputs, watcher.Stop)
	}

	if cfg.Monitoring.AutoStart {
		if err := eng.StartMonitoring(cfg.Monitoring.Interval); err != nil {
			return err
		}
	}

	server, err := api.NewServer(eng, promSink.Handler(), logger.Named("api"), api.Config{
		Address:         cfg.API.Address,
		AdminToken:      cfg.API.AdminToken,
		DefaultInterval: cfg.Monitoring.Interval,
		ReadTimeout:     cfg.API.ReadTimeout,
		WriteTimeout:    cfg.API.WriteTimeout,
		ShutdownTimeout: cfg.API.ShutdownTimeout,
		Version:         cfg.App.Version,
	})
	if err != nil {
		return err
	}

	if err := server.Start(ctx); err != nil {
		return err
	}
	logger.Info("Vigil stopped")
	return nil
}

// buildProvider assembles the snapshot provider. The returned func closes
// the database pool, if one was opened.
func buildProvider(cfg *config.Config, logger *zap.Logger) (*provider.Provider, *provider.Counters, func(), error) {
	counters := provider.NewCounters()
	closeProbe := func() {}

	var probe provider.DatabaseProbe
	if cfg.Database.DSN != "" {
		sqlProbe, err := provider.OpenSQLProbe(cfg.Database.Driver, cfg.Database.DSN, provider.SQLProbeConfig{
			Query:        cfg.Database.ProbeQuery,
			SlowAfter:    cfg.Database.SlowQuery(),
			MaxOpenConns: cfg.Database.MaxOpenConns,
		})
		if err != nil {
			return nil, nil, closeProbe, err
		}
		probe = sqlProbe
		closeProbe = func() {
			if err := sqlProbe.Close(); err != nil {
				logger.Warn("Failed to close database pool", zap.Error(err))
			}
		}
		logger.Info("Database monitoring enabled", zap.String("driver", cfg.Database.Driver))
	}

	prov, err := provider.New(provider.Config{
		System:      provider.NewHostReader(logger.Named("host")),
		Database:    probe,
		Counters:    counters,
		Logger:      logger.Named("provider"),
		Version:     cfg.App.Version,
		Environment: cfg.App.Environment,
	})
	if err != nil {
		closeProbe()
		return nil, nil, func() {}, err
	}
	return prov, counters, closeProbe, nil
}
