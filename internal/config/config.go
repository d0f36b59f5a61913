// Package config provides YAML-based configuration loading for Stenograph.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Stenograph configuration, loaded from config.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Worker    WorkerConfig    `yaml:"worker"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// DatabaseConfig holds connection settings for the relational store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "mysql" or "sqlite"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Path     string `yaml:"path"` // sqlite file path
}

// ArchiveConfig holds settings for the blob archive.
type ArchiveConfig struct {
	Root string `yaml:"root"`
}

// ProxyConfig holds settings for the forwarding proxy server.
type ProxyConfig struct {
	Port int `yaml:"port"`
}

// DashboardConfig holds settings for the dashboard API server.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// WorkerConfig holds settings for the queue consumer process.
type WorkerConfig struct {
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	Slots               int    `yaml:"slots"`
	SweepCron           string `yaml:"sweep_cron"`
}

// NotifyConfig holds optional notification targets for completed
// session analytics runs.
type NotifyConfig struct {
	SlackToken     string `yaml:"slack_token"`
	SlackChannel   string `yaml:"slack_channel"`
	DiscordToken   string `yaml:"discord_token"`
	DiscordChannel string `yaml:"discord_channel"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Database == "" {
		c.Database.Database = "stenograph"
	}
	if c.Database.Path == "" {
		c.Database.Path = "stenograph.db"
	}
	if c.Archive.Root == "" {
		c.Archive.Root = "archive"
	}
	if c.Proxy.Port == 0 {
		c.Proxy.Port = 8484
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8485
	}
	if c.Worker.PollIntervalSeconds == 0 {
		c.Worker.PollIntervalSeconds = 5
	}
	if c.Worker.Slots == 0 {
		c.Worker.Slots = 2
	}
	if c.Worker.SweepCron == "" {
		c.Worker.SweepCron = "*/30 * * * *"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (mysql, sqlite)", c.Database.Driver))
	}
	if c.Proxy.Port == c.Dashboard.Port {
		errs = append(errs, "proxy.port and dashboard.port must differ")
	}
	if c.Worker.Slots < 1 {
		errs = append(errs, "worker.slots must be at least 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
