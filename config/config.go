// Package config loads the fabric's configuration from environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-tunable parameter for the fabric.
type Config struct {
	KV       KVConfig
	Upstream UpstreamConfig
	Breaker  BreakerConfig
	FanOut   FanOutConfig
	Warming  WarmingConfig

	CoalesceBatchDelay time.Duration
	PrefetchPlaceIDs   []string
	SlotTimezone       string
	AuditRetention     time.Duration
}

type KVConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type UpstreamConfig struct {
	BaseURL      string
	RateLimit    int
	RateWindowMs int
}

type BreakerConfig struct {
	FailureThreshold int
	TimeoutMs        int
	SuccessThreshold int
}

type FanOutConfig struct {
	Courts int
	Slots  int
}

type WarmingConfig struct {
	WorkerCount int
	QueueSize   int
}

// Load reads configuration from environment variables, applying the
// documented defaults for anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		KV: KVConfig{
			Host:     getEnv("KV_HOST", "localhost"),
			Port:     getEnv("KV_PORT", "6379"),
			Password: getEnv("KV_PASSWORD", ""),
		},
		Upstream: UpstreamConfig{
			BaseURL: getEnv("UPSTREAM_BASE_URL", "http://localhost:4000"),
		},
		SlotTimezone:       getEnv("SLOT_TIMEZONE", "UTC"),
		CoalesceBatchDelay: 50 * time.Millisecond,
	}

	var err error
	if cfg.KV.DB, err = getEnvInt("KV_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Upstream.RateLimit, err = getEnvInt("RATE_LIMIT", 60); err != nil {
		return nil, err
	}
	if cfg.Upstream.RateWindowMs, err = getEnvInt("RATE_WINDOW_MS", 60000); err != nil {
		return nil, err
	}
	if cfg.Breaker.FailureThreshold, err = getEnvInt("BREAKER_FAILURE_THRESHOLD", 5); err != nil {
		return nil, err
	}
	if cfg.Breaker.TimeoutMs, err = getEnvInt("BREAKER_TIMEOUT_MS", 60000); err != nil {
		return nil, err
	}
	if cfg.Breaker.SuccessThreshold, err = getEnvInt("BREAKER_SUCCESS_THRESHOLD", 3); err != nil {
		return nil, err
	}
	if cfg.FanOut.Courts, err = getEnvInt("FAN_OUT_COURTS", 5); err != nil {
		return nil, err
	}
	if cfg.FanOut.Slots, err = getEnvInt("FAN_OUT_SLOTS", 10); err != nil {
		return nil, err
	}
	if cfg.Warming.WorkerCount, err = getEnvInt("WARM_WORKER_COUNT", 4); err != nil {
		return nil, err
	}
	if cfg.Warming.QueueSize, err = getEnvInt("WARM_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}

	if delayMs, err := getEnvInt("COALESCE_BATCH_DELAY_MS", 50); err != nil {
		return nil, err
	} else {
		cfg.CoalesceBatchDelay = time.Duration(delayMs) * time.Millisecond
	}

	retentionHours, err := getEnvInt("AUDIT_RETENTION_HOURS", 168)
	if err != nil {
		return nil, err
	}
	cfg.AuditRetention = time.Duration(retentionHours) * time.Hour

	if raw := os.Getenv("PREFETCH_PLACE_IDS"); raw != "" {
		cfg.PrefetchPlaceIDs = splitNonEmpty(raw, ",")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func splitNonEmpty(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
