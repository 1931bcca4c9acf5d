package app

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	BaseURL  string // Required: Kombuchalyzer service URL (default: http://localhost:8000)
	Username string // Optional: login email, prompted for if missing
	Password string // Optional: login password, prompted for if missing

	StateFile string        // Optional: where the session token is kept between runs
	Timeout   time.Duration // Optional: HTTP request timeout (default: 10s)
	PageSize  int           // Optional: roster page size (default: 10)

	Env       string // Environment (dev, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: text)
}

func LoadConfig() Config {
	return Config{
		BaseURL:   getEnvOrDefault("KB_BASE_URL", "http://localhost:8000"),
		Username:  os.Getenv("KB_USERNAME"),
		Password:  os.Getenv("KB_PASSWORD"),
		StateFile: getEnvOrDefault("KB_STATE_FILE", defaultStateFile()),
		Timeout:   getEnvDurationOrDefault("KB_TIMEOUT", 10*time.Second),
		PageSize:  getEnvIntOrDefault("KB_PAGE_SIZE", 10),
		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

func defaultStateFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kbctl-session"
	}
	return filepath.Join(home, ".kbctl-session")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are taken as seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
