package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"` // push channel, probes, metrics

	// Storage
	DBPath string `envconfig:"DB_PATH" default:"habit-tks.db"`
	// How often the DB size gauge is refreshed and stale lock entries dropped.
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1h"`

	// REST API
	APIListenAddr  string `envconfig:"API_LISTEN_ADDR" default:":8090"`
	CORSOrigins    string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://127.0.0.1:5173"`
	RateLimitRPS   int    `envconfig:"RATE_LIMIT_RPS" default:"50"`
	RateLimitBurst int    `envconfig:"RATE_LIMIT_BURST" default:"100"`

	// There is no authentication; every request acts as this user.
	MockUserID   string `envconfig:"MOCK_USER_ID" default:"demo_user_123"`
	SeedDemoUser bool   `envconfig:"SEED_DEMO_USER" default:"true"`

	// Calendar days for streaks are computed in this zone.
	Timezone string `envconfig:"TIMEZONE" default:"UTC"`

	// Push channel
	HeartbeatInterval  time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"30s"`
	HeartbeatMaxMissed int           `envconfig:"HEARTBEAT_MAX_MISSED" default:"2"`
	WSWriteTimeout     time.Duration `envconfig:"WS_WRITE_TIMEOUT" default:"10s"`

	// Progression penalties
	PenaltySkipThreshold int           `envconfig:"PENALTY_SKIP_THRESHOLD" default:"3"`
	PenaltyWindow        time.Duration `envconfig:"PENALTY_WINDOW" default:"168h"`
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// CORSOriginList returns the parsed list of allowed origins.
func (c *Config) CORSOriginList() []string {
	if c.CORSOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, o := range parts {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// IsDevelopment reports whether console logging should be used.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// Validate checks values envconfig cannot express as tags.
func (c *Config) Validate() error {
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be positive, got %s", c.HeartbeatInterval)
	}
	if c.HeartbeatMaxMissed < 1 {
		return fmt.Errorf("HEARTBEAT_MAX_MISSED must be at least 1, got %d", c.HeartbeatMaxMissed)
	}
	if c.PenaltySkipThreshold < 1 {
		return fmt.Errorf("PENALTY_SKIP_THRESHOLD must be at least 1, got %d", c.PenaltySkipThreshold)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive, got %s", c.CleanupInterval)
	}
	if c.MockUserID == "" {
		return fmt.Errorf("MOCK_USER_ID must not be empty")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return LoadWithPrefix("")
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		if prefix == "" {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
