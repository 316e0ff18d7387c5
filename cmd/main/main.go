package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"series-observer/src/analysis"
	"series-observer/src/config"
	datasource "series-observer/src/data_source"
	"series-observer/src/grpc_control"
	"series-observer/src/interfaces"
	"series-observer/src/logger"
	"series-observer/src/monitoring"
	"series-observer/src/network"
	"series-observer/src/server"
	"series-observer/src/session"
	"series-observer/src/storage"
)

const cleanupInterval = time.Hour

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	config, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(config.LogLevel, config.Name)

	// 1. Storage (optional)
	var db interfaces.IDatabase
	var tables interfaces.ITableReader

	switch config.Storage.DBType {
	case "postgres":
		pg, err := storage.NewPostgresDB(config.MConfig, appLogger.Named("postgres"))
		if err != nil {
			appLogger.Critical("Failed to init db: %v", err)
		}
		db, tables = pg, pg
	case "sqlite":
		lite, err := storage.NewAsyncSQLiteDB(config.MConfig, appLogger.Named("sqlite"))
		if err != nil {
			appLogger.Critical("Failed to init db: %v", err)
		}
		db, tables = lite, lite
	default:
		appLogger.Info("No database configured, sessions live in memory only")
	}

	if db != nil {
		if err := db.Initialize(); err != nil {
			appLogger.Critical("Failed to migrate db: %v", err)
		}
		defer db.Close()
		if err := db.CleanupOldData(); err != nil {
			appLogger.Warning("Initial cleanup failed: %v", err)
		}
	}

	// 2. Engine, sessions and metrics
	engine := analysis.NewSeriesEngine(config.Engine, appLogger.Named("engine"))
	metrics := monitoring.NewMetrics()

	store, err := session.NewSessionStore(config.Sessions.CacheSize, db, appLogger.Named("sessions"))
	if err != nil {
		appLogger.Critical("Failed to create session store: %v", err)
	}

	// 3. Sources
	networkManager, err := network.NewAsyncNetworkManager(config.MConfig, appLogger.Named("network"))
	if err != nil {
		appLogger.Critical("Failed to create network manager: %v", err)
	}
	sources, err := datasource.NewSourcesFromConfig(config.Sources, engine, networkManager, tables)
	if err != nil {
		appLogger.Critical("Invalid sources: %v", err)
	}
	multiSource := datasource.NewMultiSourceManager(sources, config.Network.ConcurrentRequests, appLogger.Named("sources"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Initial data load
	if len(sources) > 0 {
		appLogger.Info("Loading %d configured source(s)...", len(sources))
		loaded, err := multiSource.Preload(ctx, store)
		if err != nil {
			appLogger.Warning("Preload interrupted: %v", err)
		}
		for _, info := range loaded {
			appLogger.Info("Session %s: %s (%d series, %d points)", info.ID, info.Name, len(info.Series), info.Points)
		}
	}
	metrics.SessionsActive.Set(float64(store.Len()))

	// 5. Servers
	srv := server.NewObserverServer(config.MConfig, engine, store, metrics, appLogger.Named("server"))
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Critical("Server failed: %v", err)
		}
	}()

	var control *grpc_control.ControlService
	if addr := config.GrpcAddress(); addr != "" {
		control = grpc_control.NewControlService(engine, store, multiSource, srv, metrics, appLogger.Named("control"))
		if err := control.Start(addr); err != nil {
			appLogger.Critical("Failed to start gRPC control server: %v", err)
		}
	}

	appLogger.Info("Initialization complete.")

	// 6. Main loop: retention cleanup until a signal arrives
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if db != nil {
				if err := db.CleanupOldData(); err != nil {
					appLogger.Warning("Cleanup failed: %v", err)
				}
			}
			appLogger.Debug("Heap %.1f MB, %d cached session(s)", session.HeapMB(), store.Len())

		case <-quit:
			appLogger.Info("Shutting down...")
			cancel()
			if control != nil {
				control.Stop()
			}
			if err := srv.Stop(); err != nil {
				appLogger.Error("Server shutdown: %v", err)
			}
			return
		}
	}
}
