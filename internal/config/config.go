package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-driven setting.
type Config struct {
	Port    string
	BaseURL string
	Env     string

	DBPath      string
	GeoIPDBPath string

	// Shortening-specific limiter.
	RateLimitWindow time.Duration
	RateLimitMax    int
	// General API limiter, same window.
	APIRateLimitMax int

	ClickBufferSize int
}

// Load reads an optional .env file and assembles the configuration with
// defaults for everything not set.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:            getEnv("PORT", "3000"),
		BaseURL:         getEnv("BASE_URL", "http://localhost:3000"),
		Env:             getEnv("ENV", "development"),
		DBPath:          getEnv("DB_PATH", "./shortlink.db"),
		GeoIPDBPath:     getEnv("GEOIP_DB_PATH", ""),
		RateLimitWindow: time.Duration(getEnvInt("RATE_LIMIT_WINDOW_MS", 60000)) * time.Millisecond,
		RateLimitMax:    getEnvInt("RATE_LIMIT_MAX_REQUESTS", 10),
		APIRateLimitMax: getEnvInt("API_RATE_LIMIT_MAX", 60),
		ClickBufferSize: getEnvInt("CLICK_BUFFER_SIZE", 1024),
	}
}

// IsDevelopment reports whether error detail may be surfaced to clients.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
