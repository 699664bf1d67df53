package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Daemon.URL == "" {
		cfg.Daemon.URL = "http://127.0.0.1:17767"
	}
	if cfg.Daemon.Timeout == 0 {
		cfg.Daemon.Timeout = 30 * time.Second
	}
	if cfg.Scan.Interval == 0 {
		cfg.Scan.Interval = 30 * time.Second
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "redis"
	}

	switch cfg.Store.Backend {
	case "redis", "postgres", "memory":
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	return &cfg, nil
}
