// Package config provides application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	GRPCHealthPort string
	FrontendURL    string
	DBPath         string
	JWTSecret      string
	API            APIConfig
	History        HistoryConfig
	Timer          TimerConfig
	Journal        JournalConfig
	Submit         SubmitConfig
	Health         HealthConfig
	Timeout        TimeoutConfig
}

// APIConfig locates the platform REST API.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// HistoryConfig controls chat history paging.
type HistoryConfig struct {
	PageSize int
}

// TimerConfig controls the practice timer redraw cadence.
type TimerConfig struct {
	TickInterval time.Duration
}

// JournalConfig controls retention of the activity journal.
type JournalConfig struct {
	Retention     time.Duration
	SweepInterval time.Duration
}

// SubmitConfig throttles answer submissions per user.
type SubmitConfig struct {
	RateLimit  int
	RateWindow time.Duration
}

// HealthConfig controls the gRPC health dependency watch.
type HealthConfig struct {
	WatchInterval time.Duration
}

// TimeoutConfig holds server-side timeouts.
type TimeoutConfig struct {
	HealthCheck time.Duration
	Shutdown    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		GRPCHealthPort: getEnv("GRPC_HEALTH_PORT", "9090"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/practice.db"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		API: APIConfig{
			BaseURL: strings.TrimRight(getEnv("API_BASE_URL", ""), "/"),
			Timeout: getEnvDuration("API_TIMEOUT", 15*time.Second),
		},
		History: HistoryConfig{
			PageSize: getEnvInt("HISTORY_PAGE_SIZE", 20),
		},
		Timer: TimerConfig{
			TickInterval: getEnvDuration("TIMER_TICK_INTERVAL", time.Second),
		},
		Journal: JournalConfig{
			Retention:     getEnvDuration("JOURNAL_RETENTION", 720*time.Hour),
			SweepInterval: getEnvDuration("JOURNAL_SWEEP_INTERVAL", time.Hour),
		},
		Submit: SubmitConfig{
			RateLimit:  getEnvInt("SUBMIT_RATE_LIMIT", 10),
			RateWindow: getEnvDuration("SUBMIT_RATE_WINDOW", time.Minute),
		},
		Health: HealthConfig{
			WatchInterval: getEnvDuration("HEALTH_WATCH_INTERVAL", 15*time.Second),
		},
		Timeout: TimeoutConfig{
			HealthCheck: getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
			Shutdown:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute http(s) URL")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be > 0")
	}
	if c.History.PageSize <= 0 {
		return fmt.Errorf("HISTORY_PAGE_SIZE must be > 0")
	}
	if c.Timer.TickInterval <= 0 {
		return fmt.Errorf("TIMER_TICK_INTERVAL must be > 0")
	}
	if c.Journal.Retention <= 0 || c.Journal.SweepInterval <= 0 {
		return fmt.Errorf("JOURNAL_RETENTION and JOURNAL_SWEEP_INTERVAL must be > 0")
	}
	if c.Submit.RateLimit <= 0 || c.Submit.RateWindow <= 0 {
		return fmt.Errorf("SUBMIT_RATE_LIMIT and SUBMIT_RATE_WINDOW must be > 0")
	}
	if c.Health.WatchInterval <= 0 {
		return fmt.Errorf("HEALTH_WATCH_INTERVAL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the frontend.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() || c.FrontendURL == "" {
		return []string{"*"}
	}
	u, err := url.Parse(c.FrontendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return []string{c.FrontendURL}
	}
	return []string{u.Scheme + "://" + u.Host}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
