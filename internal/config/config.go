// Package config provides configuration for the application
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultServerPort          = 8080
	defaultUploadDir           = "files"
	defaultPreviewDir          = "previews"
	defaultPreviewTTL          = time.Hour
	defaultPreviewReapInterval = time.Hour
	defaultJPEGQuality         = 90
	defaultMemoryEntries       = 128
	defaultMaxDimension        = 4096
	defaultMaxSourcePixels     = 100_000_000
	defaultFFmpegPath          = "ffmpeg"
	defaultMaxUploadSize       = 50 * 1024 * 1024 // 50MB
	defaultRateLimitPerMinute  = 100
)

// Config holds all configuration for the application
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Logging  LoggingConfig
	CORS     CORSConfig
	Storage  StorageConfig
	Preview  PreviewConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port               int
	MaxUploadSize      int64
	RateLimitPerMinute int
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string
}

// StorageConfig holds file storage settings
type StorageConfig struct {
	UploadDir string
}

// PreviewConfig holds preview generation and caching settings
type PreviewConfig struct {
	Dir           string
	TTL           time.Duration
	ReapInterval  time.Duration
	ReapSchedule  string
	JPEGQuality   int
	Workers       int
	MemoryEntries int
	MaxDimension    int
	MaxSourcePixels int64
	FFmpegPath      string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// .env is optional, the environment always wins
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}

	// Database configuration
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		return nil, fmt.Errorf("DB_HOST is required")
	}
	cfg.Database.Host = dbHost

	dbPortStr := os.Getenv("DB_PORT")
	if dbPortStr == "" {
		return nil, fmt.Errorf("DB_PORT is required")
	}
	dbPort, err := strconv.Atoi(dbPortStr)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	cfg.Database.Port = dbPort

	dbUser := os.Getenv("DB_USER")
	if dbUser == "" {
		return nil, fmt.Errorf("DB_USER is required")
	}
	cfg.Database.User = dbUser

	dbPassword := os.Getenv("DB_PASSWORD")
	if dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	cfg.Database.Password = dbPassword

	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		return nil, fmt.Errorf("DB_NAME is required")
	}
	cfg.Database.DBName = dbName

	// Server configuration
	if cfg.Server.Port, err = intEnv("SERVER_PORT", defaultServerPort); err != nil {
		return nil, err
	}
	maxUpload, err := intEnv("MAX_UPLOAD_SIZE", defaultMaxUploadSize)
	if err != nil {
		return nil, err
	}
	cfg.Server.MaxUploadSize = int64(maxUpload)
	if cfg.Server.RateLimitPerMinute, err = intEnv("RATE_LIMIT_PER_MINUTE", defaultRateLimitPerMinute); err != nil {
		return nil, err
	}

	// Logging configuration
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info" // default level
	}
	cfg.Logging.Level = logLevel

	// CORS configuration
	corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if corsOrigins == "" {
		// Default to allow all origins if not specified (for development)
		cfg.CORS.AllowedOrigins = []string{"*"}
	} else {
		// Parse comma-separated origins
		origins := strings.Split(corsOrigins, ",")
		cfg.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, origin)
			}
		}
		// If no valid origins found, default to allow all
		if len(cfg.CORS.AllowedOrigins) == 0 {
			cfg.CORS.AllowedOrigins = []string{"*"}
		}
	}

	// Storage configuration
	cfg.Storage.UploadDir = stringEnv("UPLOAD_DIR", defaultUploadDir)

	// Preview configuration
	cfg.Preview.Dir = stringEnv("PREVIEW_DIR", defaultPreviewDir)
	cfg.Preview.FFmpegPath = stringEnv("FFMPEG_PATH", defaultFFmpegPath)
	// optional cron expression, overrides PREVIEW_REAP_INTERVAL
	cfg.Preview.ReapSchedule = stringEnv("PREVIEW_REAP_SCHEDULE", "")
	if cfg.Preview.TTL, err = durationEnv("PREVIEW_TTL", defaultPreviewTTL); err != nil {
		return nil, err
	}
	if cfg.Preview.ReapInterval, err = durationEnv("PREVIEW_REAP_INTERVAL", defaultPreviewReapInterval); err != nil {
		return nil, err
	}
	if cfg.Preview.JPEGQuality, err = intEnv("PREVIEW_JPEG_QUALITY", defaultJPEGQuality); err != nil {
		return nil, err
	}
	if cfg.Preview.JPEGQuality < 1 || cfg.Preview.JPEGQuality > 100 {
		return nil, fmt.Errorf("invalid PREVIEW_JPEG_QUALITY: must be between 1 and 100")
	}
	if cfg.Preview.Workers, err = intEnv("PREVIEW_WORKERS", runtime.NumCPU()); err != nil {
		return nil, err
	}
	if cfg.Preview.MemoryEntries, err = intEnv("PREVIEW_MEMORY_ENTRIES", defaultMemoryEntries); err != nil {
		return nil, err
	}
	if cfg.Preview.MaxDimension, err = intEnv("PREVIEW_MAX_DIMENSION", defaultMaxDimension); err != nil {
		return nil, err
	}
	maxPixels, err := intEnv("PREVIEW_MAX_SOURCE_PIXELS", defaultMaxSourcePixels)
	if err != nil {
		return nil, err
	}
	if maxPixels == 0 {
		return nil, fmt.Errorf("invalid PREVIEW_MAX_SOURCE_PIXELS: must be positive")
	}
	cfg.Preview.MaxSourcePixels = int64(maxPixels)

	return cfg, nil
}

// DSN returns the database connection string
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
	)
}

func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// intEnv parses a non-negative integer variable
func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return n, nil
}

// durationEnv parses a positive time.ParseDuration value
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
