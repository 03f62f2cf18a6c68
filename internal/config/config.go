// Package config provides runtime configuration for the quotes commands.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds connection and processing knobs, collected from environment.
type Config struct {
	NATSURL      string
	QuotesStream string
	NotifyStream string
	CursorBucket string
	MetricsAddr  string
	PollInterval time.Duration
	LogPageSize  int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvms(key string, defMs int) time.Duration {
	return time.Duration(atoienv(key, defMs)) * time.Millisecond
}

// Load collects configuration from environment with defaults.
func Load() Config {
	return Config{
		NATSURL:      getenv("NATS_URL", ""),
		QuotesStream: getenv("QUOTES_STREAM", "QUOTES_ES"),
		NotifyStream: getenv("NOTIFY_STREAM", "NOTIFY_ES"),
		CursorBucket: getenv("CURSOR_BUCKET", "quotes_cursors"),
		MetricsAddr:  getenv("METRICS_ADDR", ":9102"),
		PollInterval: durenvms("POLL_INTERVAL_MS", 250),
		LogPageSize:  atoienv("LOG_PAGE_SIZE", 256),
	}
}
