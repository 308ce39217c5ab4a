package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the service configuration. Values come from defaults, then the
// optional YAML file named by CONFIG_FILE, then environment variables.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// AdvertisePort is the port renderers use to fetch hosted clips. It differs
	// from Port when the service sits behind a port mapping.
	AdvertisePort int `yaml:"advertise_port"`

	SSDPDiscoveryTimeoutMs int `yaml:"ssdp_discovery_timeout_ms"`
	SSDPMaxResults         int `yaml:"ssdp_max_results"`
	DescriptionTimeoutMs   int `yaml:"description_timeout_ms"`
	SoapTimeoutMs          int `yaml:"soap_timeout_ms"`

	PlayStartTimeoutSec      int `yaml:"play_start_timeout_sec"`
	PlayPollIntervalMs       int `yaml:"play_poll_interval_ms"`
	PlayCompletionTimeoutSec int `yaml:"play_completion_timeout_sec"`
	PlayLockTimeoutSec       int `yaml:"play_lock_timeout_sec"`

	// SQLiteDBPath enables play history when non-empty.
	SQLiteDBPath         string `yaml:"sqlite_db_path"`
	HistoryRetentionDays int    `yaml:"history_retention_days"`
	HistoryPruneSchedule string `yaml:"history_prune_schedule"`

	// APIJWTSecret enables bearer-token auth when non-empty.
	APIJWTSecret string `yaml:"api_jwt_secret"`
	AssetsDir    string `yaml:"assets_dir"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Host:                     "0.0.0.0",
		Port:                     5000,
		SSDPDiscoveryTimeoutMs:   2500,
		SSDPMaxResults:           25,
		DescriptionTimeoutMs:     3000,
		SoapTimeoutMs:            3000,
		PlayStartTimeoutSec:      5,
		PlayPollIntervalMs:       1000,
		PlayCompletionTimeoutSec: 0,
		PlayLockTimeoutSec:       120,
		HistoryRetentionDays:     30,
		HistoryPruneSchedule:     "@daily",
		AssetsDir:                "./assets",
	}
}

// Load reads configuration from CONFIG_FILE (if set) and environment variables.
func Load() (Config, error) {
	cfg := Defaults()

	if path := envString("CONFIG_FILE", ""); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.Host = envString("HOST", cfg.Host)
	cfg.Port = envInt("PORT", cfg.Port)
	cfg.AdvertisePort = envInt("ADVERTISE_PORT", cfg.AdvertisePort)
	cfg.SSDPDiscoveryTimeoutMs = envInt("SSDP_DISCOVERY_TIMEOUT_MS", cfg.SSDPDiscoveryTimeoutMs)
	cfg.SSDPMaxResults = envInt("SSDP_MAX_RESULTS", cfg.SSDPMaxResults)
	cfg.DescriptionTimeoutMs = envInt("DESCRIPTION_TIMEOUT_MS", cfg.DescriptionTimeoutMs)
	cfg.SoapTimeoutMs = envInt("SOAP_TIMEOUT_MS", cfg.SoapTimeoutMs)
	cfg.PlayStartTimeoutSec = envInt("PLAY_START_TIMEOUT_SEC", cfg.PlayStartTimeoutSec)
	cfg.PlayPollIntervalMs = envInt("PLAY_POLL_INTERVAL_MS", cfg.PlayPollIntervalMs)
	cfg.PlayCompletionTimeoutSec = envInt("PLAY_COMPLETION_TIMEOUT_SEC", cfg.PlayCompletionTimeoutSec)
	cfg.PlayLockTimeoutSec = envInt("PLAY_LOCK_TIMEOUT_SEC", cfg.PlayLockTimeoutSec)
	cfg.SQLiteDBPath = envString("SQLITE_DB_PATH", cfg.SQLiteDBPath)
	cfg.HistoryRetentionDays = envInt("HISTORY_RETENTION_DAYS", cfg.HistoryRetentionDays)
	cfg.HistoryPruneSchedule = envString("HISTORY_PRUNE_SCHEDULE", cfg.HistoryPruneSchedule)
	cfg.APIJWTSecret = envString("API_JWT_SECRET", cfg.APIJWTSecret)
	cfg.AssetsDir = envString("ASSETS_DIR", cfg.AssetsDir)

	if cfg.AdvertisePort == 0 {
		cfg.AdvertisePort = cfg.Port
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c Config) validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535"))
	}
	if c.AdvertisePort <= 0 || c.AdvertisePort > 65535 {
		errs = append(errs, fmt.Errorf("ADVERTISE_PORT must be between 1 and 65535"))
	}
	if c.PlayPollIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("PLAY_POLL_INTERVAL_MS must be positive"))
	}
	if c.PlayStartTimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("PLAY_START_TIMEOUT_SEC must be positive"))
	}
	if c.PlayCompletionTimeoutSec < 0 {
		errs = append(errs, fmt.Errorf("PLAY_COMPLETION_TIMEOUT_SEC must not be negative"))
	}
	if c.APIJWTSecret != "" && len(strings.TrimSpace(c.APIJWTSecret)) < 32 {
		errs = append(errs, fmt.Errorf("API_JWT_SECRET must be at least 32 characters"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address.
func (c Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

func (c Config) SSDPDiscoveryTimeout() time.Duration {
	return time.Duration(c.SSDPDiscoveryTimeoutMs) * time.Millisecond
}

func (c Config) DescriptionTimeout() time.Duration {
	return time.Duration(c.DescriptionTimeoutMs) * time.Millisecond
}

func (c Config) SoapTimeout() time.Duration {
	return time.Duration(c.SoapTimeoutMs) * time.Millisecond
}

func (c Config) PlayStartTimeout() time.Duration {
	return time.Duration(c.PlayStartTimeoutSec) * time.Second
}

func (c Config) PlayPollInterval() time.Duration {
	return time.Duration(c.PlayPollIntervalMs) * time.Millisecond
}

func (c Config) PlayCompletionTimeout() time.Duration {
	return time.Duration(c.PlayCompletionTimeoutSec) * time.Second
}

func (c Config) PlayLockTimeout() time.Duration {
	return time.Duration(c.PlayLockTimeoutSec) * time.Second
}

// HistoryRetention is how long play history is kept.
func (c Config) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}
