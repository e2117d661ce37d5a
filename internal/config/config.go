// Package config provides configuration loading for the runlens viewer.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the viewer service.
type Config struct {
	// Server configuration
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	ShutdownGrace time.Duration

	// Upstream source configuration
	SourceURL string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Cursor store configuration
	CursorStoreType string // "memory" or "redis"
	CursorTTL       time.Duration

	// Transport tuning
	PollInterval       time.Duration
	BackupPollInterval time.Duration
	ReadyGrace         time.Duration
	MaxReconnectWait   time.Duration

	// Session tuning
	ChunkRingLimit     int
	SeekDebounce       time.Duration
	AdvanceTick        time.Duration
	CheckpointInterval time.Duration

	// CORS configuration
	CORSOrigins []string

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Tracing
	TracingEnabled  bool
	TracingEndpoint string
	ServiceName     string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Port:          getEnv("PORT", "7080"),
		ReadTimeout:   getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:  getDuration("WRITE_TIMEOUT", 30*time.Second),
		ShutdownGrace: getDuration("SHUTDOWN_GRACE", 10*time.Second),

		// Upstream
		SourceURL: getEnv("SOURCE_URL", "http://localhost:7070"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		// Cursor store
		CursorStoreType: getEnv("CURSORSTORE", "memory"), // "memory" or "redis"
		CursorTTL:       getDuration("CURSOR_TTL", 7*24*time.Hour),

		// Transport
		PollInterval:       getDuration("POLL_INTERVAL", 2*time.Second),
		BackupPollInterval: getDuration("BACKUP_POLL_INTERVAL", 5*time.Second),
		ReadyGrace:         getDuration("READY_GRACE", 5*time.Second),
		MaxReconnectWait:   getDuration("MAX_RECONNECT_WAIT", 30*time.Second),

		// Session
		ChunkRingLimit:     getInt("CHUNK_RING_LIMIT", 500),
		SeekDebounce:       getDuration("SEEK_DEBOUNCE", 150*time.Millisecond),
		AdvanceTick:        getDuration("ADVANCE_TICK", 200*time.Millisecond),
		CheckpointInterval: getDuration("CHECKPOINT_INTERVAL", 2*time.Second),

		// CORS
		CORSOrigins: getStringSlice("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),

		// Rate limiting
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 100.0),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 200),

		// Tracing
		TracingEnabled:  getBool("TRACING_ENABLED", false),
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4317"),
		ServiceName:     getEnv("SERVICE_NAME", "runlens"),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		return strings.Split(val, ",")
	}
	return defaultVal
}
