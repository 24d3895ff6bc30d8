// Package config reads runtime configuration from an optional YAML file and
// STREAK_* environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alexanderramin/streak/internal/decision"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings.
type Config struct {
	DBPath string `yaml:"db"`
	TickMs int    `yaml:"tick_ms"`

	// Seed values for the persisted global flags; nil leaves the stored
	// value alone.
	SingleActiveTimer      *bool `yaml:"single_active_timer"`
	AskBeforeSkippingTimer *bool `yaml:"ask_before_skipping_timer"`

	DedupWindowMs   int `yaml:"dedup_window_ms"`
	UndoWindowMs    int `yaml:"undo_window_ms"`
	PolicyCacheSize int `yaml:"policy_cache_size"`

	// PolicyCacheTTLMs bounds how long an edit made by another process goes
	// unseen; 0 disables expiry.
	PolicyCacheTTLMs int    `yaml:"policy_cache_ttl_ms"`
	Timezone         string `yaml:"timezone"`

	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultConfig returns a Config with the database under ~/.streak and
// the local timezone.
func DefaultConfig() Config {
	cfg := Config{
		TickMs:           1000,
		UndoWindowMs:     5000,
		PolicyCacheSize:  128,
		PolicyCacheTTLMs: 10000,
		Timezone:         "Local",
		LogLevel:         "warn",
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.DBPath = filepath.Join(home, ".streak", "streak.db")
	} else {
		cfg.DBPath = "streak.db"
	}
	return cfg
}

// Load builds the configuration from defaults, the YAML file at path (or
// STREAK_CONFIG when path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = os.Getenv("STREAK_CONFIG")
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("STREAK_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("STREAK_TICK_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.TickMs = n
		}
	}
	applyBoolEnv(&c.SingleActiveTimer, "STREAK_SINGLE_ACTIVE_TIMER")
	applyBoolEnv(&c.AskBeforeSkippingTimer, "STREAK_ASK_BEFORE_SKIP")
	if v := os.Getenv("STREAK_DEDUP_WINDOW_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.DedupWindowMs = n
		}
	}
	if v := os.Getenv("STREAK_UNDO_WINDOW_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.UndoWindowMs = n
		}
	}
	if v := os.Getenv("STREAK_POLICY_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.PolicyCacheSize = n
		}
	}
	if v := os.Getenv("STREAK_POLICY_CACHE_TTL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.PolicyCacheTTLMs = n
		}
	}
	if v := os.Getenv("STREAK_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("STREAK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("STREAK_LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv("STREAK_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
}

func applyBoolEnv(dst **bool, name string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return
	}
	*dst = &b
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db path is empty"))
	}
	if c.TickMs <= 0 {
		errs = append(errs, fmt.Errorf("tick_ms must be positive, got %d", c.TickMs))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

func (c Config) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowMs) * time.Millisecond
}

func (c Config) UndoWindow() time.Duration {
	return time.Duration(c.UndoWindowMs) * time.Millisecond
}

func (c Config) PolicyCacheTTL() time.Duration {
	return time.Duration(c.PolicyCacheTTLMs) * time.Millisecond
}

// Location resolves Timezone; "Local" and "" mean the process zone.
func (c Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) Level() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

// SeedFlags applies the configured flag overrides on top of stored ones.
func (c Config) SeedFlags(stored decision.Flags) decision.Flags {
	if c.SingleActiveTimer != nil {
		stored.SingleActiveTimer = *c.SingleActiveTimer
	}
	if c.AskBeforeSkippingTimer != nil {
		stored.AskBeforeSkippingTimer = *c.AskBeforeSkippingTimer
	}
	return stored
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", s, err)
	}
	return lvl, nil
}
