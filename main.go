package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/aerolake/aerolake-etl/pkg/config"
	"github.com/aerolake/aerolake-etl/pkg/database"
	"github.com/aerolake/aerolake-etl/pkg/handlers"
	"github.com/aerolake/aerolake-etl/pkg/ingest"
	"github.com/aerolake/aerolake-etl/pkg/logging"
	"github.com/aerolake/aerolake-etl/pkg/repositories"
	"github.com/aerolake/aerolake-etl/pkg/retry"
	"github.com/aerolake/aerolake-etl/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	once := flag.Bool("once", false, "run a single batch and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("source_path", cfg.Pipeline.SourcePath),
		zap.Int("workers", cfg.Pipeline.Workers))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to the warehouse
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to warehouse", zap.Error(err))
	}
	defer db.Close()

	// Run migrations using database/sql (required by golang-migrate)
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger); err != nil {
		_ = sqlDB.Close()
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	// Repositories
	customerRepo := repositories.NewCustomerDimensionRepository(cfg.Pipeline.CustomerTrackedAttributes)
	airportRepo := repositories.NewAirportDimensionRepository(cfg.Pipeline.AirportTrackedAttributes)
	factRepo := repositories.NewFlightFactRepository()
	qualityRepo := repositories.NewQualityRepository()
	runRepo := repositories.NewLoadRunRepository()

	// Services
	retryCfg := retry.DefaultConfig()
	pipeline := services.NewPipeline(services.PipelineDeps{
		Sessions: db,
		Source: func() (ingest.RecordSource, error) {
			return ingest.OpenNDJSONFile(cfg.Pipeline.SourcePath)
		},
		Validator:      services.NewValidator(),
		Transformer:    services.NewTransformer(cfg.Pipeline.CustomerTrackedAttributes, cfg.Pipeline.AirportTrackedAttributes),
		CustomerMerger: services.NewDimensionMerger(customerRepo, cfg.Pipeline.MergeMaxRetries, logger),
		AirportMerger:  services.NewDimensionMerger(airportRepo, cfg.Pipeline.MergeMaxRetries, logger),
		FactLoader:     services.NewFactLoader(factRepo, airportRepo, retryCfg, logger),
		Auditor:        services.NewQualityAuditor(qualityRepo, retryCfg, logger),
		RunRepo:        runRepo,
		Workers:        cfg.Pipeline.Workers,
		StorageTimeout: cfg.Pipeline.StorageTimeout,
	}, logger)

	if *once {
		run, err := pipeline.Run(ctx)
		if err != nil {
			logger.Error("Batch run failed", zap.Error(err))
			os.Exit(1)
		}
		logger.Info("Batch run complete", zap.String("run_id", run.ID.String()))
		return
	}

	// Scheduled mode: recurring batches plus the read-only reporting surface.
	go pipeline.RunScheduler(ctx, cfg.Pipeline.RunInterval)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewViewsHandler(db, customerRepo, airportRepo, factRepo, runRepo,
		cfg.Pipeline.StorageTimeout, logger).RegisterRoutes(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")
		_ = server.Shutdown(context.Background())
	}()

	logger.Info("Starting aerolake-etl",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
