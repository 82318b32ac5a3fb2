package config

import (
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr        string
	Namespace       string
	Kubeconfig      string
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	RedisHost       string
	RedisPort       int
	VisitsKey       string
	LogLevel        string

	// Version is stamped by main from build flags, not the environment.
	Version string
}

func Load() *Config {
	return &Config{
		HTTPAddr:        envOr("PODPULSE_ADDR", ":5000"),
		Namespace:       envOr("PODPULSE_NAMESPACE", "default"),
		Kubeconfig:      os.Getenv("KUBECONFIG"),
		RefreshInterval: envDurationOr("PODPULSE_REFRESH_INTERVAL", 5*time.Second),
		FetchTimeout:    envDurationOr("PODPULSE_FETCH_TIMEOUT", 10*time.Second),
		RedisHost:       envOr("REDIS_HOST", "localhost"),
		RedisPort:       envIntOr("REDIS_PORT", 6379),
		VisitsKey:       envOr("PODPULSE_VISITS_KEY", "visitor_count"),
		LogLevel:        envOr("PODPULSE_LOG_LEVEL", "info"),
	}
}

func (c *Config) RedisAddr() string {
	return net.JoinHostPort(c.RedisHost, strconv.Itoa(c.RedisPort))
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
