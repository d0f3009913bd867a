package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendONNX   = "onnx"
	BackendOpenCV = "opencv"
)

type Config struct {
	Port              int
	AdminPassword     string // Empty disables admin endpoints
	ModelPath         string
	ModelMetadataPath string
	ModelConfigPath   string // Only used by the OpenCV backend (frozen graphs)
	ModelBackend      string
	OnnxRuntimeLib    string
	Threshold         float64
	ProcessingWorkers int // Każdy worker ładuje własną kopię modelu
	QueueSize         int
	RequestTimeout    time.Duration
	MaxUploadSize     int64 // bytes
	HistoryEnabled    bool
	ImageDirectory    string
	DatabasePath      string
	BufferLimit       int
	FlushInterval     int // seconds
	LogDirectory      string
	StaticDirectory   string
	SiteConfigPath    string
	RateLimitRPS      float64
	RateLimitBurst    int
	DemoDelay         time.Duration
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables win over it.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:              getEnvAsInt("PORT", 8080),
		AdminPassword:     getEnv("ADMIN_PASSWORD", ""),
		ModelPath:         getEnv("MODEL_PATH", filepath.Join(".", "models", "model.onnx")),
		ModelMetadataPath: getEnv("MODEL_METADATA_PATH", filepath.Join(".", "models", "model_metadata.json")),
		ModelConfigPath:   getEnv("MODEL_CONFIG_PATH", ""),
		ModelBackend:      strings.ToLower(getEnv("MODEL_BACKEND", BackendONNX)),
		OnnxRuntimeLib:    getEnv("ONNXRUNTIME_LIB", ""),
		Threshold:         getEnvAsFloat("THRESHOLD", 0.5),
		ProcessingWorkers: getEnvAsInt("PROCESSING_WORKERS", 2),
		QueueSize:         getEnvAsInt("QUEUE_SIZE", 16),
		RequestTimeout:    time.Duration(getEnvAsInt("REQUEST_TIMEOUT", 30)) * time.Second,
		MaxUploadSize:     getEnvAsInt64("MAX_UPLOAD_MB", 10) << 20,
		HistoryEnabled:    getEnvAsBool("HISTORY_ENABLED", true),
		ImageDirectory:    getEnv("IMAGE_DIR", filepath.Join(".", "images")),
		DatabasePath:      getEnv("DB_PATH", filepath.Join(".", "data", "history.db")),
		BufferLimit:       getEnvAsInt("BUFFER_LIMIT", 8),
		FlushInterval:     getEnvAsInt("FLUSH_INTERVAL", 5),
		LogDirectory:      getEnv("LOG_DIR", filepath.Join(".", "logs")),
		StaticDirectory:   getEnv("STATIC_DIR", filepath.Join(".", "static")),
		SiteConfigPath:    getEnv("SITE_CONFIG", ""),
		RateLimitRPS:      getEnvAsFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst:    getEnvAsInt("RATE_LIMIT_BURST", 5),
		DemoDelay:         time.Duration(getEnvAsInt("DEMO_DELAY", 0)) * time.Millisecond,
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return fmt.Errorf("threshold must be between 0 and 1 (exclusive), got %v", c.Threshold)
	}
	if c.ModelBackend != BackendONNX && c.ModelBackend != BackendOpenCV {
		return fmt.Errorf("unknown model backend %q", c.ModelBackend)
	}
	if c.ProcessingWorkers <= 0 {
		return fmt.Errorf("processing workers must be positive, got %d", c.ProcessingWorkers)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", c.QueueSize)
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	if c.HistoryEnabled && (c.BufferLimit <= 0 || c.FlushInterval <= 0) {
		return fmt.Errorf("buffer limit and flush interval must be positive when history is enabled")
	}
	return nil
}

// AdminEnabled reports whether admin endpoints may be used.
func (c *Config) AdminEnabled() bool {
	return c.AdminPassword != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
