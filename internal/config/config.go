package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration.
type Config struct {
	LogLevel  string          `yaml:"logLevel"`
	Server    ServerConfig    `yaml:"server"`
	Calendar  CalendarConfig  `yaml:"calendar"`
	Session   SessionConfig   `yaml:"session"`
	Google    GoogleConfig    `yaml:"google"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// CalendarConfig contains provider settings.
type CalendarConfig struct {
	ID              string        `yaml:"id"`
	Name            string        `yaml:"name"` // shown in the .ics feed
	Timezone        string        `yaml:"timezone"`
	SendUpdates     string        `yaml:"sendUpdates"`
	ProviderTimeout time.Duration `yaml:"providerTimeout"`
	ReadRetries     int           `yaml:"readRetries"`
	Endpoint        string        `yaml:"endpoint,omitempty"`
}

// SessionConfig selects where caller credentials come from.
type SessionConfig struct {
	Backend     string `yaml:"backend"` // "header", "file" or "redis"
	CookieName  string `yaml:"cookieName"`
	TokenDir    string `yaml:"tokenDir,omitempty"`
	RedisAddr   string `yaml:"redisAddr,omitempty"`
	RedisPrefix string `yaml:"redisPrefix,omitempty"`
}

// GoogleConfig holds the OAuth client used to mint and refresh tokens.
type GoogleConfig struct {
	ClientID     string `yaml:"clientId,omitempty"`
	ClientSecret string `yaml:"clientSecret,omitempty"`
	RedirectURL  string `yaml:"redirectUrl,omitempty"`
}

// RateLimitConfig bounds request throughput across all callers.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// Location resolves the configured calendar time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", c.Calendar.Timezone, err)
	}
	return loc, nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Load builds the configuration with the following precedence (highest to
// lowest): environment variables, the YAML file at path (optional),
// defaults. Keys present in a layer override lower layers even when zero.
// The result is validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Server.Host, "HOST")
	setString(&cfg.Calendar.ID, "GOOGLE_CALENDAR_ID")
	setString(&cfg.Calendar.Name, "CALENDAR_NAME")
	setString(&cfg.Calendar.Timezone, "PRIMARY_TIMEZONE")
	setString(&cfg.Calendar.SendUpdates, "SEND_UPDATES")
	setString(&cfg.Calendar.Endpoint, "GOOGLE_CALENDAR_ENDPOINT")
	setString(&cfg.Session.Backend, "SESSION_BACKEND")
	setString(&cfg.Session.CookieName, "SESSION_COOKIE")
	setString(&cfg.Session.TokenDir, "SESSION_TOKEN_DIR")
	setString(&cfg.Session.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Session.RedisPrefix, "REDIS_SESSION_PREFIX")
	setString(&cfg.Google.ClientID, "GOOGLE_CLIENT_ID")
	setString(&cfg.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&cfg.Google.RedirectURL, "GOOGLE_REDIRECT_URL")

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT value: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("PROVIDER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid PROVIDER_TIMEOUT value: %w", err)
		}
		cfg.Calendar.ProviderTimeout = d
	}
	if v := os.Getenv("READ_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid READ_RETRIES value: %w", err)
		}
		cfg.Calendar.ReadRetries = n
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_RPS value: %w", err)
		}
		cfg.RateLimit.RequestsPerSecond = rps
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_BURST value: %w", err)
		}
		cfg.RateLimit.Burst = burst
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Defaults returns the configuration used for any key the file and the
// environment leave unset. Explicit zero values override these.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Calendar: CalendarConfig{
			ID:              "primary",
			Name:            "Bookings",
			Timezone:        "UTC",
			SendUpdates:     "all",
			ProviderTimeout: 10 * time.Second,
			ReadRetries:     2,
		},
		Session: SessionConfig{
			Backend:     "header",
			CookieName:  "session",
			RedisPrefix: "bookcal:session:",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
	}
}

// Validate checks values that would otherwise fail at request time.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.Calendar.SendUpdates {
	case "all", "externalOnly", "none":
	default:
		return fmt.Errorf("calendar.sendUpdates must be 'all', 'externalOnly' or 'none', got '%s'", c.Calendar.SendUpdates)
	}
	if c.Calendar.ProviderTimeout <= 0 {
		return fmt.Errorf("calendar.providerTimeout must be positive")
	}
	if c.Calendar.ReadRetries < 0 {
		return fmt.Errorf("calendar.readRetries must not be negative")
	}
	if c.Calendar.ID == "" {
		return fmt.Errorf("calendar.id must not be empty")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("rateLimit.burst must be positive when rate limiting is enabled")
	}
	switch strings.ToLower(c.Session.Backend) {
	case "header", "file":
	case "redis":
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("session.redisAddr must be provided for the redis session backend")
		}
	default:
		return fmt.Errorf("session.backend must be 'header', 'file' or 'redis', got '%s'", c.Session.Backend)
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rateLimit values must not be negative")
	}
	return nil
}
