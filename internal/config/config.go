// Package config loads YAML configuration with defaults and environment
// overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Governor  GovernorConfig  `yaml:"governor"`
	Snapshots SnapshotsConfig `yaml:"snapshots"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Plans     PlansConfig     `yaml:"plans"`
	Audit     AuditConfig     `yaml:"audit"`
	Auth      AuthConfig      `yaml:"auth"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type UpstreamConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIVersion string        `yaml:"api_version"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
}

type GovernorConfig struct {
	MinDelay      time.Duration `yaml:"min_delay"`
	DelayJitter   time.Duration `yaml:"delay_jitter"`
	BackoffBase   time.Duration `yaml:"backoff_base"`
	BackoffSpread time.Duration `yaml:"backoff_spread"`
	DefaultAllow  bool          `yaml:"default_allow"`
}

type SnapshotsConfig struct {
	Dir           string        `yaml:"dir"`
	Timezone      string        `yaml:"timezone"`
	Deadline      time.Duration `yaml:"deadline"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	MinRows       int           `yaml:"min_rows"`
	BackfillHours int           `yaml:"backfill_hours"`
}

type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval"`
	Accounts []string      `yaml:"accounts"`
}

type PlansConfig struct {
	Path string `yaml:"path"`
}

type AuditConfig struct {
	DBPath string `yaml:"db_path"`
}

type AuthConfig struct {
	AdminKeyHash string `yaml:"admin_key_hash"`
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Upstream: UpstreamConfig{
			BaseURL:    "https://graph.example.com",
			APIVersion: "v19.0",
			Timeout:    30 * time.Second,
		},
		Governor: GovernorConfig{
			MinDelay:      5 * time.Second,
			DelayJitter:   2 * time.Second,
			BackoffBase:   10 * time.Minute,
			BackoffSpread: 10 * time.Minute,
			DefaultAllow:  true,
		},
		Snapshots: SnapshotsConfig{
			Dir:           "data/snapshots",
			Timezone:      "UTC",
			Deadline:      6 * time.Hour,
			RetryInterval: 30 * time.Minute,
			MinRows:       0,
			BackfillHours: 6,
		},
		Scheduler: SchedulerConfig{
			Interval: 10 * time.Minute,
		},
		Plans: PlansConfig{
			Path: "data/plans.json",
		},
		Audit: AuditConfig{
			DBPath: "data/audit.db",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SLUICE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SLUICE_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SLUICE_UPSTREAM_TOKEN"); v != "" {
		cfg.Upstream.Token = v
	}
	if v := os.Getenv("SLUICE_ADMIN_KEY_HASH"); v != "" {
		cfg.Auth.AdminKeyHash = v
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Location resolves the snapshot timezone. Collection hours and budget
// periods are both interpreted in this zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Snapshots.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Snapshots.Timezone)
	if err != nil {
		return nil, fmt.Errorf("resolving snapshot timezone: %w", err)
	}
	return loc, nil
}
