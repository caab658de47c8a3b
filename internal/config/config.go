package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Listen string `yaml:"listen"`
		// UploadHost is the host-allowlist substring for admin
		// endpoints; a request qualifies when its Host header
		// contains it.
		UploadHost string `yaml:"upload_host"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	WWW struct {
		DocumentRoot string `yaml:"document_root"`
	} `yaml:"www"`
	Schedule struct {
		// CleanCron schedules a periodic dry-run anomaly report;
		// empty disables it.
		CleanCron string `yaml:"clean_cron"`
		// CheckpointCron schedules periodic store compaction; empty
		// disables it.
		CheckpointCron string `yaml:"checkpoint_cron"`
	} `yaml:"schedule"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("UPLOAD_HOST"); v != "" {
		cfg.Server.UploadHost = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("DOCUMENT_ROOT"); v != "" {
		cfg.WWW.DocumentRoot = v
	}
	if v := os.Getenv("CLEAN_CRON"); v != "" {
		cfg.Schedule.CleanCron = v
	}
	if v := os.Getenv("CHECKPOINT_CRON"); v != "" {
		cfg.Schedule.CheckpointCron = v
	}

	// Defaults
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":3456"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/prices.db"
	}
	if cfg.WWW.DocumentRoot == "" {
		cfg.WWW.DocumentRoot = "www"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Server.UploadHost == "" {
		return fmt.Errorf("server.upload_host is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}
