// Package config loads promptvault configuration from an optional YAML
// file with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all promptvault configuration.
type Config struct {
	DBPath      string       `yaml:"db_path"`
	BackupDir   string       `yaml:"backup_dir"`
	MaxBackups  int          `yaml:"max_backups"`
	Dedupe      DedupeConfig `yaml:"dedupe"`
	SlowOpMilli int          `yaml:"slow_op_ms"`
}

// SlowOp returns the slow-operation threshold as a duration.
func (c *Config) SlowOp() time.Duration {
	return time.Duration(c.SlowOpMilli) * time.Millisecond
}

// DedupeConfig controls duplicate detection.
type DedupeConfig struct {
	Threshold float64 `yaml:"threshold"`
	MinTokens int     `yaml:"min_tokens"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			c.DBPath = "promptvault.db"
		} else {
			c.DBPath = filepath.Join(home, ".promptvault", "promptvault.db")
		}
	}
	if c.BackupDir == "" {
		c.BackupDir = filepath.Join(filepath.Dir(c.DBPath), "backups")
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 10
	}
	if c.Dedupe.Threshold <= 0 {
		c.Dedupe.Threshold = 0.9
	}
	if c.Dedupe.MinTokens <= 0 {
		c.Dedupe.MinTokens = 5
	}
	if c.SlowOpMilli <= 0 {
		c.SlowOpMilli = 100
	}
}

// applyEnv overlays PROMPTVAULT_* environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("PROMPTVAULT_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("PROMPTVAULT_BACKUP_DIR"); v != "" {
		c.BackupDir = v
	}
	if v := os.Getenv("PROMPTVAULT_MAX_BACKUPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("PROMPTVAULT_MAX_BACKUPS must be a positive integer, got %q", v)
		}
		c.MaxBackups = n
	}
	if v := os.Getenv("PROMPTVAULT_DUP_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 1 {
			return fmt.Errorf("PROMPTVAULT_DUP_THRESHOLD must be in (0,1], got %q", v)
		}
		c.Dedupe.Threshold = f
	}
	if v := os.Getenv("PROMPTVAULT_DUP_MIN_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("PROMPTVAULT_DUP_MIN_TOKENS must be a positive integer, got %q", v)
		}
		c.Dedupe.MinTokens = n
	}
	if v := os.Getenv("PROMPTVAULT_SLOW_OP_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("PROMPTVAULT_SLOW_OP_MS must be a positive integer, got %q", v)
		}
		c.SlowOpMilli = n
	}
	return nil
}

// Load reads an optional YAML config file, overlays environment
// variables, fills defaults, and ensures the data and backup directories
// exist. path may be "" to skip the file entirely.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.defaults()

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	return cfg, nil
}
