package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port         string
	DatabasePath string
	LogLevel     string

	// HTTP surface
	MaxUploadSizeBytes int64
	FrontendBaseURL    string

	// Kanga exchange settings
	KangaBaseURL     string
	KangaAPIKey      string
	KangaAPISecret   string
	KangaUser        string
	KangaPageLimit   int
	KangaPause       time.Duration
	KangaMaxRetries  int
	KangaBackoffBase time.Duration

	// Binance exchange settings
	BinanceBaseURL     string
	BinanceAPIKey      string
	BinanceAPISecret   string
	BinancePageLimit   int
	BinancePause       time.Duration
	BinanceMaxRetries  int
	BinanceBackoffBase time.Duration

	// NBP currency rate API
	NBPBaseURL string
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
// It centralizes all configuration logic for the application.
func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}
	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found. Relying on OS environment variables (expected in production).")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760") // 10MB default
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB. Error: %v", maxUploadSizeBytesStr, err)
		maxUploadSizeBytes = 10 * 1024 * 1024
	}

	Cfg = &AppConfig{
		// Core
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./crypto_tracker.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		// HTTP surface
		MaxUploadSizeBytes: maxUploadSizeBytes,
		FrontendBaseURL:    getEnv("APP_BASE_URL", "http://localhost:3000"),

		// Kanga
		KangaBaseURL:     getEnv("KANGA_BASE_URL", "https://api.kanga.exchange"),
		KangaAPIKey:      getEnv("KANGA_API_KEY", ""),
		KangaAPISecret:   getEnv("KANGA_API_SECRET", ""),
		KangaUser:        getEnv("KANGA_USER", ""),
		KangaPageLimit:   getEnvAsInt("KANGA_PAGE_LIMIT", 500),
		KangaPause:       getEnvAsDuration("KANGA_PAUSE", time.Second),
		KangaMaxRetries:  getEnvAsInt("KANGA_MAX_RETRIES", 3),
		KangaBackoffBase: getEnvAsDuration("KANGA_BACKOFF_BASE", time.Second),

		// Binance
		BinanceBaseURL:     getEnv("BINANCE_BASE_URL", "https://api.binance.com"),
		BinanceAPIKey:      getEnv("BINANCE_API_KEY", ""),
		BinanceAPISecret:   getEnv("BINANCE_API_SECRET", ""),
		BinancePageLimit:   getEnvAsInt("BINANCE_PAGE_LIMIT", 1000),
		BinancePause:       getEnvAsDuration("BINANCE_PAUSE", 500*time.Millisecond),
		BinanceMaxRetries:  getEnvAsInt("BINANCE_MAX_RETRIES", 5),
		BinanceBackoffBase: getEnvAsDuration("BINANCE_BACKOFF_BASE", time.Second),

		// NBP
		NBPBaseURL: getEnv("NBP_BASE_URL", "https://api.nbp.pl/api"),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath)
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer or returns a fallback.
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
