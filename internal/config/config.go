package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the scheduler process.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Sending  SendingConfig  `yaml:"sending"`
}

// ServerConfig holds the admin HTTP listener settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds Postgres settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the optional Redis backend for cooldown tracking and
// progress Pub/Sub. Empty URL disables both; in-memory fallbacks take over.
type RedisConfig struct {
	URL            string `yaml:"url"`
	ProgressPrefix string `yaml:"progress_prefix"`
}

// SendingConfig tunes the worker pool.
type SendingConfig struct {
	NumWorkers         int `yaml:"num_workers"`
	PollIntervalMillis int `yaml:"poll_interval_millis"`
	SendTimeoutSeconds int `yaml:"send_timeout_seconds"`

	// SecretKeys unlock outbox credentials at delivery time. Usually set
	// via the SENDCORE_SECRET_KEYS env var, comma separated.
	SecretKeys []string `yaml:"secret_keys"`
}

// Load reads a YAML config file and applies defaults. A missing file is not
// an error; defaults and env overrides carry a bare deployment.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.ProgressPrefix == "" {
		cfg.Redis.ProgressPrefix = "sendcore:progress"
	}
	if cfg.Sending.NumWorkers == 0 {
		cfg.Sending.NumWorkers = 4
	}
	if cfg.Sending.PollIntervalMillis == 0 {
		cfg.Sending.PollIntervalMillis = 500
	}
	if cfg.Sending.SendTimeoutSeconds == 0 {
		cfg.Sending.SendTimeoutSeconds = 30
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides. A
// .env file (if present) is read first, so secrets can live in .env locally
// and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("SEND_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Sending.NumWorkers = n
		}
	}
	if v := os.Getenv("SENDCORE_SECRET_KEYS"); v != "" {
		keys := strings.Split(v, ",")
		cfg.Sending.SecretKeys = cfg.Sending.SecretKeys[:0]
		for _, k := range keys {
			if k = strings.TrimSpace(k); k != "" {
				cfg.Sending.SecretKeys = append(cfg.Sending.SecretKeys, k)
			}
		}
	}

	return cfg, nil
}
