package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netlynx/internal/api"
	"netlynx/internal/api/handlers"
	"netlynx/internal/banner"
	"netlynx/internal/database"
	"netlynx/internal/database/repositories"
	"netlynx/internal/discovery"
	"netlynx/internal/enrichment"
	"netlynx/internal/ingestion"
	parsers "netlynx/internal/parser"
	"netlynx/internal/parser/chrome"
	"netlynx/internal/realtime"
	"netlynx/internal/tracker"
	"netlynx/internal/views"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type serveFlags struct {
	host       string
	port       int
	netlogPath string
	netlogDir  string
}

func newServeCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Tail discovered captures and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.host, "host", "", "Bind address; overrides SERVER_HOST")
	cmd.Flags().IntVar(&f.port, "port", 0, "Listen port; overrides SERVER_PORT")
	cmd.Flags().StringVar(&f.netlogPath, "netlog", "", "Capture to tail; overrides NETLOG_PATH")
	cmd.Flags().StringVar(&f.netlogDir, "netlog-dir", "", "Directory scanned for captures; overrides NETLOG_DIR")
	return cmd
}

func runServe(cmd *cobra.Command, f serveFlags) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = f.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = f.port
	}
	if cmd.Flags().Changed("netlog") {
		cfg.Captures.NetLogPath = f.netlogPath
	}
	if cmd.Flags().Changed("netlog-dir") {
		cfg.Captures.NetLogDir = f.netlogDir
	}

	banner.Print()
	logger.Info("Initializing NetLynx - NetLog source classifier...")

	logger.Debug("Configuration loaded",
		logger.Args(
			"db_path", cfg.Database.Path,
			"server_port", cfg.Server.Port,
			"netlog_path", cfg.Captures.NetLogPath,
			"netlog_dir", cfg.Captures.NetLogDir,
			"geoip_enabled", cfg.GeoIP.Enabled,
		))

	db, err := database.NewConnection(&database.Config{
		Path:         cfg.Database.Path,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		ConnMaxLife:  cfg.Database.ConnMaxLife,
	}, logger)
	if err != nil {
		logger.WithCaller().Error("Failed to connect to database", logger.Args("error", err))
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	logger.Debug("Initializing repositories...")
	store := ingestion.Store{
		Captures: repositories.NewCaptureRepository(db),
		Sources:  repositories.NewSourceRepository(db, logger),
		Events:   repositories.NewEventRepository(db, logger),
	}
	statsRepo := repositories.NewStatsRepository(db, logger)

	// GeoIP is optional; without the databases sources are not enriched
	var geoIP *enrichment.GeoIPEnricher
	if cfg.GeoIP.Enabled {
		logger.Debug("Initializing GeoIP enricher...")
		geoIP, err = enrichment.NewGeoIPEnricher(
			cfg.GeoIP.CityDBPath,
			cfg.GeoIP.CountryDBPath,
			cfg.GeoIP.ASNDBPath,
			cfg.GeoIP.CacheSize,
			db,
			logger,
		)
		if err != nil {
			logger.Warn("GeoIP enricher initialization failed, continuing without GeoIP", logger.Args("error", err))
			geoIP = nil
		} else if geoIP.IsEnabled() {
			logger.Info("GeoIP enrichment enabled successfully")
			go func() {
				logger.Debug("Loading GeoIP cache in background...")
				if err := geoIP.LoadCache(); err != nil {
					logger.Warn("Failed to load GeoIP cache", logger.Args("error", err))
				} else {
					logger.Info("GeoIP cache loaded", logger.Args("entries", geoIP.GetCacheSize()))
				}
			}()
		}
	} else {
		logger.Info("GeoIP enrichment disabled by configuration")
	}

	logger.Debug("Initializing parser registry...")
	parserRegistry := parsers.NewRegistry()
	chrome.Register(parserRegistry, logger)

	logger.Debug("Running discovery engine...")
	discoveryEngine := discovery.NewEngine(store.Captures, logger,
		discovery.NewNetLogDetector(cfg.Captures.NetLogPath, cfg.Captures.NetLogDir, cfg.Captures.AutoDiscover, logger))
	if _, err := discoveryEngine.Run(); err != nil {
		logger.WithCaller().Warn("Discovery engine failed", logger.Args("error", err))
	}

	exporter := realtime.NewExporter(sqlDB)
	viewRegistry := views.NewRegistry(logger)

	logger.Debug("Initializing ingestion coordinator...")
	coordinator := ingestion.NewCoordinator(store, parserRegistry, geoIP, exporter, logger, ingestion.ProcessorOptions{
		BatchSize:      cfg.Performance.BatchSize,
		WorkerPoolSize: cfg.Performance.WorkerPoolSize,
		PollInterval:   cfg.Performance.PollInterval,
		Watch:          cfg.Performance.Watch,
		Tracker: tracker.Config{
			MaxSources:       cfg.Tracker.MaxSources,
			PrivacyStripping: cfg.Tracker.PrivacyStripping,
			NumericDate:      cfg.Tracker.NumericDate,
		},
	})
	coordinator.OnProcessor(viewRegistry.Hook())

	logger.Info("Starting ingestion engine...")
	if err := coordinator.Start(); err != nil {
		logger.WithCaller().Error("Failed to start ingestion coordinator", logger.Args("error", err))
		return err
	}
	coordinator.StartSyncLoop(cfg.Performance.SyncInterval)

	logger.Info("Ingestion engine started",
		logger.Args("processors", coordinator.GetProcessorCount()))

	logger.Debug("Initializing database cleanup service...")
	cleanupService := database.NewCleanupService(
		db,
		logger,
		cfg.Database.RetentionDays,
		cfg.Database.CleanupInterval,
		cfg.Database.CleanupTime,
		cfg.Database.VacuumEnabled,
		coordinator,
	)
	cleanupService.Start()

	logger.Info("Initializing real-time metrics collector...")
	metricsCollector := realtime.NewMetricsCollector(db, logger)
	metricsCollector.Start(cfg.Performance.RealtimeMetricsInterval)

	logger.Info("Initializing web server...")
	webServer := api.NewServer(&api.Config{
		Host:       cfg.Server.Host,
		Port:       cfg.Server.Port,
		Production: cfg.Server.Production,
	}, api.Handlers{
		Dashboard:   handlers.NewDashboardHandler(statsRepo, logger),
		Captures:    handlers.NewCaptureHandler(coordinator, statsRepo, viewRegistry, logger),
		Sources:     handlers.NewSourceHandler(store.Sources, store.Events, coordinator, logger),
		Views:       handlers.NewViewsHandler(viewRegistry),
		Realtime:    handlers.NewRealtimeHandler(metricsCollector, cfg.Performance.RealtimeMetricsInterval, logger),
		Ingest:      handlers.NewIngestHandler(coordinator, logger),
		Maintenance: handlers.NewMaintenanceHandler(cleanupService),
		Metrics:     exporter.Handler(),
	}, logger)

	go func() {
		if err := webServer.Run(); err != nil {
			logger.WithCaller().Error("Web server error", logger.Args("error", err))
		}
	}()

	logger.Info("NetLynx is running",
		logger.Args(
			"url", pterm.Sprintf("http://localhost:%d", cfg.Server.Port),
			"processors", coordinator.GetProcessorCount(),
		))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received, stopping services...")

	// Processors first so no writes race the rest of the shutdown
	logger.Debug("Stopping ingestion coordinator...")
	coordinator.Stop()

	logger.Debug("Stopping cleanup service...")
	cleanupService.Stop()

	// SSE streams hold connections open until their next tick
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Debug("Stopping web server...")
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		logger.WithCaller().Error("Web server shutdown error", logger.Args("error", err))
	} else {
		logger.Info("Web server stopped successfully")
	}

	if geoIP != nil {
		geoIP.Close()
	}

	logger.Info("NetLynx stopped gracefully")
	return nil
}
