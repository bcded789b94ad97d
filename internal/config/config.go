// Package config provides configuration loading for the grader service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the grader service.
type Config struct {
	// Server configuration
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	ShutdownGrace time.Duration

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Execution store configuration
	StoreType string // "memory" or "redis"
	StoreTTL  time.Duration

	// Sandbox configuration
	SandboxMode         string // "redis" or "subprocess"
	SandboxRequestQueue string
	SandboxReplyPrefix  string
	SandboxReplyGrace   time.Duration
	SandboxPython       string

	// Result sink configuration
	SinkType    string // "log" or "redis"
	SinkChannel string

	// Engine configuration
	VerdictPolicy        string // "all" or "any"
	MaxLoopIterations    int
	DefaultTimeLimitSecs int
	DefaultMemoryLimitMB int
	ExecutionTimeout     time.Duration

	// CORS configuration
	CORSOrigins []string

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Tracing
	TracingEnabled  bool
	TracingEndpoint string

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

		// Redis
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		// Execution store
		StoreType: getEnv("GRADER_STORE", "memory"), // "memory" or "redis"
		StoreTTL:  getDuration("STORE_TTL", 7*24*time.Hour),

		// Sandbox
		SandboxMode:         getEnv("SANDBOX_MODE", "redis"), // "redis" or "subprocess"
		SandboxRequestQueue: getEnv("SANDBOX_REQUEST_QUEUE", "grader:sandbox:requests"),
		SandboxReplyPrefix:  getEnv("SANDBOX_REPLY_PREFIX", "grader:sandbox:reply:"),
		SandboxReplyGrace:   getDuration("SANDBOX_REPLY_GRACE", 5*time.Second),
		SandboxPython:       getEnv("SANDBOX_PYTHON", "python3"),

		// Result sink
		SinkType:    getEnv("RESULT_SINK", "log"), // "log" or "redis"
		SinkChannel: getEnv("RESULT_SINK_CHANNEL", "grader:verdicts"),

		// Engine
		VerdictPolicy:        getEnv("VERDICT_POLICY", "all"), // "all" or "any"
		MaxLoopIterations:    getInt("MAX_LOOP_ITERATIONS", 100),
		DefaultTimeLimitSecs: getInt("DEFAULT_TIME_LIMIT_SECS", 10),
		DefaultMemoryLimitMB: getInt("DEFAULT_MEMORY_LIMIT_MB", 256),
		ExecutionTimeout:     getDuration("EXECUTION_TIMEOUT", 5*time.Minute),

		// CORS
		CORSOrigins: getStringSlice("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),

		// Rate limiting
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 100.0),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 200),

		// Tracing
		TracingEnabled:  getBool("TRACING_ENABLED", false),
		TracingEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

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
