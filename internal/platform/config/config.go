// Package config assembles the process configuration once at startup. The
// resulting Config is immutable and passed by reference; no component reads
// environment variables after FromEnv returns.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration.
type Config struct {
	Addr        string
	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
	Collection  CollectionConfig
	Packages    PackagesConfig

	// JWTSigningKey signs and verifies reporting-API bearer tokens.
	JWTSigningKey string

	// CollectorKeys maps a source_system name to the bcrypt hash of its API
	// key. Parsed from GRC_COLLECTOR_KEYS as "source:hash,source:hash".
	CollectorKeys map[string]string
}

// RedisConfig configures the optional coverage cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CoverageTTL  time.Duration
}

// KafkaConfig configures the optional activity event sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// CollectionConfig tunes the collection runner.
type CollectionConfig struct {
	TickInterval time.Duration
	// JobTimeout is the per-run timeout for jobs created without one.
	JobTimeout  time.Duration
	MaxParallel int
	// RetryBase is the first backoff delay after a failed run; delays double
	// per consecutive failure up to RetryCap.
	RetryBase time.Duration
	RetryCap  time.Duration
	// FileSourceDir, when set, registers a drop-directory evidence source
	// named "filedrop" watching that path.
	FileSourceDir string
}

// PackagesConfig configures audit package output.
type PackagesConfig struct {
	// OutputDir, when set, keeps a copy of every generated archive on disk
	// in addition to streaming it to the caller.
	OutputDir string
}

// FromEnv builds the configuration from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:          envOr("GRC_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("GRC_DATABASE_URL"),
		JWTSigningKey: envOr("GRC_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		CollectorKeys: parseCollectorKeys(os.Getenv("GRC_COLLECTOR_KEYS")),
		Redis: RedisConfig{
			URL:          os.Getenv("GRC_REDIS_URL"),
			PoolSize:     envInt("GRC_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("GRC_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("GRC_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("GRC_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("GRC_REDIS_WRITE_TIMEOUT", 3*time.Second),
			CoverageTTL:  envDuration("GRC_COVERAGE_CACHE_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("GRC_KAFKA_BROKERS"), ","),
			Topic:   envOr("GRC_KAFKA_ACTIVITY_TOPIC", "grc.activity"),
		},
		Collection: CollectionConfig{
			TickInterval:  envDuration("GRC_COLLECTION_TICK", time.Minute),
			JobTimeout:    envDuration("GRC_JOB_TIMEOUT", 10*time.Minute),
			MaxParallel:   envInt("GRC_JOB_MAX_PARALLEL", 4),
			RetryBase:     envDuration("GRC_JOB_RETRY_BASE", 5*time.Minute),
			RetryCap:      envDuration("GRC_JOB_RETRY_CAP", 6*time.Hour),
			FileSourceDir: os.Getenv("GRC_FILESOURCE_DIR"),
		},
		Packages: PackagesConfig{
			OutputDir: os.Getenv("GRC_PACKAGE_OUTPUT_DIR"),
		},
	}
	return cfg
}

func parseCollectorKeys(raw string) map[string]string {
	keys := make(map[string]string)
	for _, pair := range splitNonEmpty(raw, ",") {
		source, hash, ok := strings.Cut(pair, ":")
		if !ok || source == "" || hash == "" {
			continue
		}
		keys[source] = hash
	}
	return keys
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOr(key, fallback string) string {
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
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
