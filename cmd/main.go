package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/imgvid/media-service/docs"
	"github.com/imgvid/media-service/internal/config"
	"github.com/imgvid/media-service/internal/handlers"
	"github.com/imgvid/media-service/internal/logger"
	loggerMiddleware "github.com/imgvid/media-service/internal/logger/middleware"
	"github.com/imgvid/media-service/internal/middleware"
	"github.com/imgvid/media-service/internal/preview"
	"github.com/imgvid/media-service/internal/repositories"
	"github.com/imgvid/media-service/internal/scheduler"
	"github.com/imgvid/media-service/internal/services"
	"github.com/imgvid/media-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// @title Media Upload and Preview API
// @version 1.0
// @description Stores uploaded images and videos and serves originals or resized JPEG previews

// @host localhost:8080
// @BasePath /
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v\n", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v\n", err)
	}
	defer logger.Sync()

	logger.Logger.Info("Starting Media Service")

	// Connect to database
	db, err := connectDB(cfg.DSN())
	if err != nil {
		logger.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	if err := runMigrations(db); err != nil {
		logger.Logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Initialize storage
	fileStorage, err := storage.NewLocalStorage(cfg.Storage.UploadDir)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize file storage", zap.Error(err))
	}
	previewCache, err := storage.NewPreviewCache(cfg.Preview.Dir, cfg.Preview.TTL, cfg.Preview.MemoryEntries)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize preview cache", zap.Error(err))
	}

	// Initialize preview generator
	generator := preview.NewGenerator(
		preview.NewFFmpegExtractor(cfg.Preview.FFmpegPath, cfg.Preview.MaxSourcePixels),
		cfg.Preview.JPEGQuality,
		cfg.Preview.Workers,
		cfg.Preview.MaxSourcePixels,
		logger.Logger,
	)

	// Initialize repositories
	mediaRepo := repositories.NewMediaRepository(db, logger.Logger)

	// Initialize services
	mediaService := services.NewMediaService(mediaRepo, fileStorage, generator, previewCache, logger.Logger)

	// Initialize handlers
	mediaHandler := handlers.NewMediaHandler(mediaService, logger.Logger, cfg.Preview.MaxDimension)
	healthHandler := handlers.NewHealthHandler(db, logger.Logger)

	// Start preview reaper
	reapSchedule, err := scheduler.ParseSchedule(cfg.Preview.ReapSchedule, cfg.Preview.ReapInterval)
	if err != nil {
		logger.Logger.Fatal("Invalid PREVIEW_REAP_SCHEDULE", zap.Error(err))
	}
	reaper := scheduler.NewReaper(previewCache, reapSchedule, logger.Logger)
	reaper.Start(context.Background())

	// Setup router
	r := chi.NewRouter()

	// Apply middleware
	r.Use(middleware.RequestIDMiddleware)
	r.Use(loggerMiddleware.LoggerMiddleware(logger.Logger))
	r.Use(middleware.RecoveryMiddleware(logger.Logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))

	// Operational endpoints are not rate limited
	r.Get("/health", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL(fmt.Sprintf("http://localhost:%d/swagger/doc.json", cfg.Server.Port)),
	))

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.Server.RateLimitPerMinute, time.Minute))
		r.Use(middleware.RequestSizeLimitMiddleware(cfg.Server.MaxUploadSize))
		mediaHandler.RegisterRoutes(r)
	})

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  60 * time.Second, // Longer timeout for file uploads
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Logger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Waits for a reap cycle in progress
	reaper.Stop()

	logger.Logger.Info("Server exited")
}

// connectDB connects to the database
func connectDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB) error {
	// Use service-specific migration table name to avoid conflicts with other services
	driver, err := mysql.WithInstance(db, &mysql.Config{
		MigrationsTable: "media_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Get the working directory or use migrations folder relative to the binary
	migrationPath := "file://migrations"
	if _, err := os.Stat("migrations"); os.IsNotExist(err) {
		// Try parent directory if running from cmd
		if _, err := os.Stat("../migrations"); err == nil {
			migrationPath = "file://../migrations"
		}
	}

	m, err := migrate.NewWithDatabaseInstance(
		migrationPath,
		"mysql",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
