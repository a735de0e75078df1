package main

import (
	"context"
	"log" // Use standard log only for fatal errors before the logger is set up
	"os"
	"os/signal"
	"syscall"

	"quanttrader/config"
	"quanttrader/internal/adapters/backend"
	"quanttrader/internal/adapters/broker"
	"quanttrader/internal/adapters/logger"
	"quanttrader/internal/adapters/sqlite"
	"quanttrader/internal/app"
	"quanttrader/internal/execution"
	"quanttrader/internal/metrics"
	"quanttrader/internal/ports"
	"quanttrader/internal/positions"
)

func main() {
	ctx := context.Background()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize logger
	var appLogger ports.Logger
	if cfg.LogFormat == "json" {
		zl, err := logger.NewZapLogger(cfg.LogLevel)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize logger: %v", err)
		}
		defer zl.Sync()
		appLogger = zl
	} else {
		appLogger = logger.NewStdLogger(cfg.LogLevel)
	}
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize metrics (exposition endpoint is optional)
	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(cfg.MetricsAddr); err != nil {
				appLogger.Error(ctx, err, "Metrics endpoint stopped")
			}
		}()
		appLogger.Info(ctx, "Metrics endpoint listening", map[string]interface{}{"addr": cfg.MetricsAddr})
	}

	// 4. Initialize backend client
	backendClient, err := backend.New(backend.Config{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.APIToken,
		Logger:  appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize backend client")
		log.Fatalf("FATAL: Failed to initialize backend client: %v", err)
	}

	// 5. Initialize broker (variant selected by configuration)
	brokerAdapter, err := broker.New(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize broker")
		log.Fatalf("FATAL: Failed to initialize broker: %v", err)
	}
	appLogger.Info(ctx, "Broker initialized", map[string]interface{}{"type": cfg.Broker})

	// 6. Optional local execution journal
	var journal ports.ExecutionJournal
	if cfg.JournalDBPath != "" {
		j, err := sqlite.NewJournal(sqlite.Config{DBPath: cfg.JournalDBPath, Logger: appLogger})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize execution journal")
			log.Fatalf("FATAL: Failed to initialize execution journal: %v", err)
		}
		defer func() {
			if err := j.Close(); err != nil {
				appLogger.Error(ctx, err, "Error closing execution journal")
			}
		}()
		journal = j
	}

	// 7. Execution tracker
	var tracker *execution.Tracker
	if cfg.ExecutionTrackingEnabled {
		tracker, err = execution.New(execution.Config{
			Backend:    backendClient,
			Broker:     brokerAdapter,
			Journal:    journal,
			Logger:     appLogger,
			Metrics:    m,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize execution tracker")
			log.Fatalf("FATAL: Failed to initialize execution tracker: %v", err)
		}
	}

	// 8. Position/account reconciler
	var reconciler *positions.Reconciler
	if cfg.PositionSyncEnabled {
		reconciler, err = positions.New(positions.Config{
			Backend:      backendClient,
			Broker:       brokerAdapter,
			Logger:       appLogger,
			Metrics:      m,
			SyncInterval: cfg.SyncInterval,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize reconciler")
			log.Fatalf("FATAL: Failed to initialize reconciler: %v", err)
		}
	}

	// 9. Poll loop driver
	service, err := app.NewTraderService(cfg, appLogger, backendClient, brokerAdapter, tracker, reconciler, m)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trader service")
		log.Fatalf("FATAL: Failed to initialize trader service: %v", err)
	}

	// 10. Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLogger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		service.Stop()
	}()

	if err := service.Run(ctx); err != nil && err != context.Canceled {
		appLogger.Error(ctx, err, "Trader exited with error")
		os.Exit(1)
	}
}
