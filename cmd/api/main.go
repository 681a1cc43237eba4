package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"rtodocs/internal/auth"
	"rtodocs/internal/config"
	"rtodocs/internal/database"
	handlers "rtodocs/internal/http/handler"
	"rtodocs/internal/http/middleware"
	"rtodocs/internal/logging"
	"rtodocs/internal/metrics"
	rtootel "rtodocs/internal/otel"
	"rtodocs/internal/repository"
	"rtodocs/internal/repository/memory"
	"rtodocs/internal/repository/postgres"
	"rtodocs/internal/service"
	"rtodocs/internal/storage"
)

const shutdownTimeout = 15 * time.Second

// @title RTO Document API
// @version 1.0
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.Load()
	log := logging.New(os.Stdout, cfg.Location())

	if err := run(cfg, log); err != nil {
		log.Error("main", "server_failed", err, nil)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, log *logging.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := rtootel.Init(ctx, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Error("main", "tracing_shutdown_failed", err, nil)
		}
	}()

	db, repo, err := openRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	docMetrics, err := metrics.NewDocuments(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	httpMetrics, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	docSvc := service.NewDocumentService(store, repo,
		service.WithLogger(log),
		service.WithMetrics(docMetrics),
		service.WithMaxUploadBytes(cfg.Upload.MaxBytes),
	)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		// multipart framing on top of the file itself
		BodyLimit:         int(cfg.Upload.MaxBytes) + 1<<20,
		StreamRequestBody: true,
	})

	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(httpMetrics.Handler())

	deps := handlers.Deps{
		Documents:     docSvc,
		Verifier:      auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		UploadLimiter: middleware.NewRateLimiter(cfg.Upload.RateRPS, cfg.Upload.RateBurst),
		Gatherer:      reg,
		Log:           log,
		SwaggerHost:   cfg.AppHost,
	}
	if db != nil {
		deps.DB = db
	}
	handlers.RegisterRoutes(app, deps)

	errCh := make(chan error, 1)
	go func() {
		log.Info("main", "server_starting", logging.Fields{
			"addr":           ":" + cfg.Port,
			"storage_driver": cfg.Storage.Driver,
		})
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("main", "server_stopping", nil)
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openRepository connects to PostgreSQL when DB_HOST is set and falls back to
// the in-memory repository otherwise.
func openRepository(ctx context.Context, cfg *config.AppConfig, log *logging.Logger) (*sql.DB, repository.DocumentRepository, error) {
	if cfg.Database.Host == "" {
		log.Warn("main", "database_disabled", logging.Fields{"msg": "DB_HOST not set, documents are kept in memory"})
		return nil, memory.NewDocumentMemory(), nil
	}

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}
	return db, postgres.NewDocumentPostgres(db), nil
}

func openStorage(ctx context.Context, cfg *config.AppConfig) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMinIO:
		return storage.NewMinIO(ctx, cfg.Storage.MinIO, otelhttp.NewTransport(http.DefaultTransport))
	default:
		return storage.NewDisk(cfg.Storage.UploadDir)
	}
}
