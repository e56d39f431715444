// Package config resolves server configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server needs to start. All fields come from
// OBSERVATORY_* environment variables; a local .env file is honored when
// present.
type Config struct {
	StateFile    string  // world snapshot JSON path
	LedgerFile   string  // event ledger JSONL path
	TickDuration float64 // seconds per tick
	Host         string
	Port         int
	Domain       string // used in claim URLs and skill docs
	Secret       string
	Debug        bool

	// RedisAddr enables cross-instance event fanout when non-empty.
	RedisAddr string

	// AllowHMACFallback accepts HMAC-SHA256 request signatures in addition
	// to Ed25519. Intended for local development only.
	AllowHMACFallback bool
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TickInterval returns the tick duration as a time.Duration.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickDuration * float64(time.Second))
}

// FromEnv loads configuration, applying defaults for anything unset.
func FromEnv() Config {
	// Best effort: a missing .env is not an error.
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	return Config{
		StateFile:         envStr("OBSERVATORY_STATE_FILE", "world_state.json"),
		LedgerFile:        envStr("OBSERVATORY_LEDGER_FILE", "event_ledger.jsonl"),
		TickDuration:      envFloat("OBSERVATORY_TICK_DURATION", 5.0),
		Host:              envStr("OBSERVATORY_HOST", "0.0.0.0"),
		Port:              envInt("OBSERVATORY_PORT", 8000),
		Domain:            envStr("OBSERVATORY_DOMAIN", "localhost:8000"),
		Secret:            envStr("OBSERVATORY_SECRET", "observatory-dev-secret"),
		Debug:             envBool("OBSERVATORY_DEBUG", false),
		RedisAddr:         envStr("OBSERVATORY_REDIS_ADDR", ""),
		AllowHMACFallback: envBool("OBSERVATORY_ALLOW_HMAC", true),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("invalid integer in environment, using default", "key", key, "value", v)
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		slog.Warn("invalid float in environment, using default", "key", key, "value", v)
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
