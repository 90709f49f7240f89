// Package config loads server settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/xtrntr/supplylink/internal/window"
	"gopkg.in/yaml.v3"
)

// Config is the full server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Market   MarketConfig   `yaml:"market"`
	Redis    RedisConfig    `yaml:"redis"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig holds the HTTP listener and live feed settings
type ServerConfig struct {
	ListenAddr        string        `yaml:"listen_addr"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DatabaseConfig selects the store. The memory driver keeps everything in
// process and needs no URL; its data is lost on restart.
type DatabaseConfig struct {
	Driver        string `yaml:"driver"`
	URL           string `yaml:"url"`
	MigrationPath string `yaml:"migration_path"`
}

// AuthConfig holds the token signing settings
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// MarketConfig sets the timezone and hours of the bidding windows
type MarketConfig struct {
	Timezone    string `yaml:"timezone"`
	WindowHours []int  `yaml:"window_hours"`
}

// RedisConfig enables the past deals cache when Addr is set
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	DealsTTL time.Duration `yaml:"deals_ttl"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:        ":8080",
			AllowedOrigins:    []string{"http://localhost:3000"},
			BroadcastInterval: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:        DriverPostgres,
			MigrationPath: "migrations/001_init.sql",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Market: MarketConfig{
			Timezone:    "Asia/Kolkata",
			WindowHours: append([]int(nil), window.DefaultHours...),
		},
		Redis: RedisConfig{
			DealsTTL: time.Minute,
		},
		LogLevel: "info",
	}
}

// Load reads path over the defaults, applies environment overrides and validates.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg, err := read(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadStore is Load for tools that only talk to the database, such as the
// seeder. Server and auth settings are not required.
func LoadStore(path string) (Config, error) {
	cfg, err := read(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ValidateStore(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func read(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables if set
func applyEnvOverrides(cfg *Config) error {
	if driver := os.Getenv("DATABASE_DRIVER"); driver != "" {
		cfg.Database.Driver = driver
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.Server.ListenAddr = addr
	}
	if tz := os.Getenv("MARKET_TIMEZONE"); tz != "" {
		cfg.Market.Timezone = tz
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if hours := os.Getenv("MARKET_WINDOW_HOURS"); hours != "" {
		parsed, err := parseHours(hours)
		if err != nil {
			return fmt.Errorf("invalid MARKET_WINDOW_HOURS %q: %w", hours, err)
		}
		cfg.Market.WindowHours = parsed
	}
	if ttl := os.Getenv("TOKEN_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return fmt.Errorf("invalid TOKEN_TTL %q: %w", ttl, err)
		}
		cfg.Auth.TokenTTL = d
	}
	return nil
}

func parseHours(s string) ([]int, error) {
	var hours []int
	for _, part := range strings.Split(s, ",") {
		h, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		hours = append(hours, h)
	}
	return hours, nil
}

// Validate reports the first missing or malformed setting
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr is required")
	}
	if err := c.ValidateStore(); err != nil {
		return err
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required (or set JWT_SECRET)")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if c.Server.BroadcastInterval <= 0 {
		return errors.New("server.broadcast_interval must be positive")
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	return nil
}

// ValidateStore checks only the database settings
func (c *Config) ValidateStore() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("database.url is required (or set DATABASE_URL)")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver %q: want %s or %s", c.Database.Driver, DriverPostgres, DriverMemory)
	}
	return nil
}

// Location resolves the market timezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Market.Timezone)
	if err != nil {
		return nil, fmt.Errorf("market.timezone %q: %w", c.Market.Timezone, err)
	}
	return loc, nil
}

// Policy builds the bidding window policy for the configured market
func (c *Config) Policy() (*window.Policy, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	policy, err := window.NewPolicy(loc, c.Market.WindowHours...)
	if err != nil {
		return nil, fmt.Errorf("market.window_hours: %w", err)
	}
	return policy, nil
}
