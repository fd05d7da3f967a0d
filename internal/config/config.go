package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"techcare/internal/models"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Backup     BackupConfig     `yaml:"backup"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Throttle   ThrottleConfig   `yaml:"throttle"`
	Payments   PaymentsConfig   `yaml:"payments"`
	Email      EmailConfig      `yaml:"email"`
	Loyalty    LoyaltyConfig    `yaml:"loyalty"`
	Worker     WorkerConfig     `yaml:"worker"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment" env:"APP_ENV"`
	Version     string `yaml:"version"`
	PublicURL   string `yaml:"public_url" env:"APP_PUBLIC_URL"`
}

type HTTPConfig struct {
	Port         int           `yaml:"port" env:"HTTP_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Driver         string `yaml:"driver" env:"DATABASE_DRIVER"` // sqlite3 or postgres
	Path           string `yaml:"path" env:"DATABASE_PATH"`
	DSN            string `yaml:"dsn" env:"DATABASE_DSN"`
	MaxConnections int    `yaml:"max_connections"`
	AutoMigrate    bool   `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Address  string `yaml:"address" env:"REDIS_ADDRESS"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`
	Leeway    time.Duration `yaml:"leeway"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ThrottleConfig struct {
	BidsPerHour    int `yaml:"bids_per_hour"`
	BookingsPerDay int `yaml:"bookings_per_day"`
	ReviewsPerDay  int `yaml:"reviews_per_day"`
}

type PaymentsConfig struct {
	SecretKey     string `yaml:"secret_key" env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
	Currency      string `yaml:"currency"`
}

type EmailConfig struct {
	APIURL  string        `yaml:"api_url" env:"EMAIL_API_URL"`
	APIKey  string        `yaml:"api_key" env:"EMAIL_API_KEY"`
	From    string        `yaml:"from" env:"EMAIL_FROM"`
	Timeout time.Duration `yaml:"timeout"`
}

type LoyaltyConfig struct {
	PointsPerUnit float64                `yaml:"points_per_unit"`
	SignupBonus   int64                  `yaml:"signup_bonus"`
	RewardsPath   string                 `yaml:"rewards_path" env:"REWARDS_PATH"`
	Tiers         []models.TierThreshold `yaml:"tiers"`
}

// BackupConfig schedules VACUUM INTO snapshots of a SQLite database.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"` // Go duration, e.g. "24h"
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

type WorkerConfig struct {
	Enabled       bool          `yaml:"enabled"`
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	BatchSize     int           `yaml:"batch_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional outside local development
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

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return errors.New("database path is required for sqlite3")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("auth jwt secret is required")
	}

	if c.Loyalty.PointsPerUnit < 0 {
		return errors.New("loyalty points_per_unit must not be negative")
	}

	return ValidateTiers(c.Loyalty.Tiers)
}

// ValidateTiers checks tier names are unique and thresholds strictly increase.
func ValidateTiers(tiers []models.TierThreshold) error {
	seen := make(map[string]bool, len(tiers))
	for i, tier := range tiers {
		if tier.Name == "" {
			return fmt.Errorf("tier %d has empty name", i)
		}
		if seen[tier.Name] {
			return fmt.Errorf("duplicate tier found: %s", tier.Name)
		}
		seen[tier.Name] = true
		if i > 0 && tier.MinPoints <= tiers[i-1].MinPoints {
			return fmt.Errorf("tier %s threshold must be greater than %s", tier.Name, tiers[i-1].Name)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "techcare-api"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 30 * time.Second
	}
	if len(c.HTTP.CORSOrigins) == 0 {
		c.HTTP.CORSOrigins = []string{"*"}
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	if c.Database.MaxConnections == 0 {
		c.Database.MaxConnections = 10
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "./data/backups"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Auth.Leeway == 0 {
		c.Auth.Leeway = 30 * time.Second
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
	if c.Throttle.BidsPerHour == 0 {
		c.Throttle.BidsPerHour = 30
	}
	if c.Throttle.BookingsPerDay == 0 {
		c.Throttle.BookingsPerDay = 20
	}
	if c.Throttle.ReviewsPerDay == 0 {
		c.Throttle.ReviewsPerDay = 10
	}
	if c.Payments.Currency == "" {
		c.Payments.Currency = "usd"
	}
	if c.Email.From == "" {
		c.Email.From = "TechCare <noreply@techcare.app>"
	}
	if c.Email.Timeout == 0 {
		c.Email.Timeout = 10 * time.Second
	}
	if c.Loyalty.PointsPerUnit == 0 {
		c.Loyalty.PointsPerUnit = 1
	}
	if c.Loyalty.RewardsPath == "" {
		c.Loyalty.RewardsPath = "configs/rewards.yaml"
	}
	if len(c.Loyalty.Tiers) == 0 {
		c.Loyalty.Tiers = DefaultTiers()
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 5
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = 2 * time.Second
	}
	if c.Worker.BatchSize == 0 {
		c.Worker.BatchSize = 20
	}
}

// DefaultTiers returns the stock loyalty tier ladder.
func DefaultTiers() []models.TierThreshold {
	return []models.TierThreshold{
		{Name: models.TierBronze, MinPoints: 0},
		{Name: models.TierSilver, MinPoints: 500},
		{Name: models.TierGold, MinPoints: 1500},
		{Name: models.TierPlatinum, MinPoints: 5000},
	}
}

// LoadRewards reads the reward catalog from a YAML file.
func LoadRewards(path string) ([]models.Reward, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var catalog struct {
		Rewards []models.Reward `yaml:"rewards"`
	}
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse rewards: %w", err)
	}

	if err := ValidateRewards(catalog.Rewards); err != nil {
		return nil, err
	}
	return catalog.Rewards, nil
}

func ValidateRewards(rewards []models.Reward) error {
	ids := make(map[string]bool)
	for _, r := range rewards {
		if r.ID == "" {
			return fmt.Errorf("reward '%s' has empty ID", r.Name)
		}
		if ids[r.ID] {
			return fmt.Errorf("duplicate reward ID found: %s", r.ID)
		}
		if r.PointsCost <= 0 {
			return fmt.Errorf("reward '%s' must cost a positive number of points", r.ID)
		}
		ids[r.ID] = true
	}
	return nil
}
