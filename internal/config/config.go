package config

import (
	"os"
	"strconv"
	"time"

	"github.com/railboard/railboard_core/internal/source"
	"github.com/railboard/railboard_core/internal/stations"
)

// Config is the full process configuration, read from the environment
// once at startup. Components receive the structs they need; nothing
// reads the environment after this.
type Config struct {
	Port string

	CacheTTL        time.Duration
	AdapterTimeout  time.Duration
	RateLimitPerSec int

	EventRingSize    int
	EventSnapshot    int
	SubscriberBuffer int

	Darwin source.DarwinConfig
	RTT    source.RTTConfig
	Legacy source.LegacyConfig
	Feed   source.PushFeedConfig

	Redis    RedisConfig
	Stations stations.Config
}

// RedisConfig holds the shared cache connection settings. An empty Host
// selects the in-process store.
type RedisConfig struct {
	Host       string
	Port       int
	Password   string
	DB         int
	TLSEnabled bool
}

// Load reads the full configuration from environment variables
func Load() Config {
	return Config{
		Port: getEnv("API_PORT", "8080"),

		CacheTTL:        getEnvDuration("BOARD_CACHE_TTL", 30*time.Second),
		AdapterTimeout:  getEnvDuration("ADAPTER_TIMEOUT", 5*time.Second),
		RateLimitPerSec: getEnvInt("RATE_LIMIT_PER_SECOND", 10),

		EventRingSize:    getEnvInt("EVENT_RING_SIZE", 200),
		EventSnapshot:    getEnvInt("EVENT_SNAPSHOT_LIMIT", 50),
		SubscriberBuffer: getEnvInt("EVENT_SUBSCRIBER_BUFFER", 32),

		Darwin: source.DarwinConfig{
			BaseURL: getEnv("DARWIN_GATEWAY_URL", ""),
			Token:   getEnv("DARWIN_GATEWAY_TOKEN", ""),
			Timeout: getEnvDuration("DARWIN_TIMEOUT", 5*time.Second),
		},
		RTT: source.RTTConfig{
			BaseURL:  getEnv("RTT_API_URL", "https://api.rtt.io/api/v1"),
			Username: getEnv("RTT_USERNAME", ""),
			Password: getEnv("RTT_PASSWORD", ""),
			Timeout:  getEnvDuration("RTT_TIMEOUT", 5*time.Second),
		},
		Legacy: source.LegacyConfig{
			BaseURL: getEnv("LEGACY_FEED_URL", ""),
			Timeout: getEnvDuration("LEGACY_TIMEOUT", 8*time.Second),
		},
		Feed: source.PushFeedConfig{
			URL:          getEnv("DARWIN_STREAM_URL", ""),
			Token:        getEnv("DARWIN_GATEWAY_TOKEN", ""),
			ReconnectMin: getEnvDuration("FEED_RECONNECT_MIN", time.Second),
			ReconnectMax: getEnvDuration("FEED_RECONNECT_MAX", 30*time.Second),
		},

		Redis: RedisConfig{
			Host:       getEnv("REDIS_HOST", ""),
			Port:       getEnvInt("REDIS_PORT", 6379),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvInt("REDIS_DB", 0),
			TLSEnabled: getEnv("REDIS_TLS_ENABLED", "false") == "true",
		},
		Stations: stations.Config{
			Host:     getEnv("DB_HOST", ""),
			Port:     getEnvInt("DB_PORT", 5432),
			Database: getEnv("DB_NAME", "railboard"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
