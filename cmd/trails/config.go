package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all trails engine configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath          string `json:"db_path"`
	LogLevel        string `json:"log_level"`
	DispatchTimeout string `json:"dispatch_timeout"`
	SchedulerTick   string `json:"scheduler_tick"`
}

func defaultConfig() Config {
	return Config{
		DBPath:          filepath.Join(trailsDir(), "trails.db"),
		LogLevel:        "info",
		DispatchTimeout: "60s",
		SchedulerTick:   "60s",
	}
}

func trailsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".trails"
	}
	return filepath.Join(home, ".trails")
}

func settingsPath() string {
	return filepath.Join(trailsDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("TRAILS_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("TRAILS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TRAILS_DISPATCH_TIMEOUT"); v != "" {
		cfg.DispatchTimeout = v
	}
	if v := os.Getenv("TRAILS_SCHEDULER_TICK"); v != "" {
		cfg.SchedulerTick = v
	}

	return cfg
}

func (c Config) dispatchTimeout() time.Duration {
	return durationOr(c.DispatchTimeout, 60*time.Second)
}

func (c Config) schedulerTick() time.Duration {
	return durationOr(c.SchedulerTick, 60*time.Second)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	// Bare numbers are taken as seconds.
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}
