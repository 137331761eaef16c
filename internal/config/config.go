package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"localservices/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Booking    BookingConfig    `yaml:"booking"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Directory  DirectoryConfig  `yaml:"directory"`
}

type BookingConfig struct {
	MaxDuration time.Duration `yaml:"max_duration"`
	Currency    string        `yaml:"currency"`
	WatchBuffer int           `yaml:"watch_buffer"`
	// CancelRetries bounds the per-sibling retries of a group cancellation.
	CancelRetries int `yaml:"cancel_retries"`
}

// DirectoryConfig seeds the provider directory and the listing catalog.
type DirectoryConfig struct {
	Providers []models.Provider `yaml:"providers"`
	Listings  []models.Listing  `yaml:"listings"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled bool `yaml:"enabled"`
	// Schedule is a cron expression, e.g. "0 3 * * *" or "@every 6h".
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Booking.MaxDuration < time.Hour {
		return fmt.Errorf("booking.max_duration must be at least 1h, got %s", c.Booking.MaxDuration)
	}

	if err := ValidateProviders(c.Directory.Providers); err != nil {
		return err
	}
	return ValidateListings(c.Directory.Listings, c.Directory.Providers)
}

func ValidateProviders(providers []models.Provider) error {
	ids := make(map[string]bool)
	for _, p := range providers {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("provider '%s' has empty ID", p.DisplayName)
		}
		if ids[p.ID] {
			return fmt.Errorf("duplicate provider ID found: %s", p.ID)
		}
		ids[p.ID] = true
	}
	return nil
}

// ValidateListings checks listing ids and, when providers are configured, that every
// listing points at a known owner.
func ValidateListings(listings []models.Listing, providers []models.Provider) error {
	owners := make(map[string]bool, len(providers))
	for _, p := range providers {
		owners[p.ID] = true
	}

	ids := make(map[string]bool)
	for _, l := range listings {
		if strings.TrimSpace(l.ID) == "" {
			return fmt.Errorf("listing '%s' has empty ID", l.Name)
		}
		if ids[l.ID] {
			return fmt.Errorf("duplicate listing ID found: %s", l.ID)
		}
		ids[l.ID] = true
		if len(owners) > 0 && !owners[l.OwnerID] {
			return fmt.Errorf("listing %s references unknown owner %s", l.ID, l.OwnerID)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.Booking.MaxDuration == 0 {
		c.Booking.MaxDuration = models.DefaultMaxDurationHours * time.Hour
	}
	if c.Booking.Currency == "" {
		c.Booking.Currency = models.DefaultCurrency
	}
	if c.Booking.WatchBuffer <= 0 {
		c.Booking.WatchBuffer = models.DefaultWatchBuffer
	}
	if c.Booking.CancelRetries <= 0 {
		c.Booking.CancelRetries = 3
	}

	if c.Backup.Enabled && c.Backup.Schedule == "" {
		c.Backup.Schedule = "@daily"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
}
