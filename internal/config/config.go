// Package config loads all runtime settings from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the launcher configuration from environment variables.
type Config struct {
	Port        string
	DatabaseDSN string

	MaxRetries   int
	Concurrency  int
	SyncPageSize int
	ChainIDs     []int64

	ModerationBatchSize int
	ListingCacheTTL     time.Duration

	SweepInterval        time.Duration
	SyncInterval         time.Duration
	ModerationInterval   time.Duration
	WebhookInterval      time.Duration
	WebhookSigningKey    string
	OracleEndpoints      map[string]string

	EscrowGatewayURL string

	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageUseSSL    bool
	ResultsBucket    string

	VisionEndpoint string
	VisionAPIKey   string

	SlackWebhookURL string
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	return Config{
		Port:        getEnv("LAUNCHER_PORT", "8080"),
		DatabaseDSN: getEnv("LAUNCHER_DATABASE_DSN", "host=localhost user=launcher dbname=launcher sslmode=disable"),

		MaxRetries:   getEnvInt("LAUNCHER_MAX_RETRIES", 5),
		Concurrency:  getEnvInt("LAUNCHER_CONCURRENCY", 8),
		SyncPageSize: getEnvInt("LAUNCHER_SYNC_PAGE_SIZE", 100),
		ChainIDs:     getEnvInt64List("LAUNCHER_CHAIN_IDS", []int64{137}),

		ModerationBatchSize: getEnvInt("LAUNCHER_MODERATION_BATCH_SIZE", 100),
		ListingCacheTTL:     getEnvDuration("LAUNCHER_LISTING_CACHE_TTL", 10*time.Minute),

		SweepInterval:      getEnvDuration("LAUNCHER_SWEEP_INTERVAL", time.Minute),
		SyncInterval:       getEnvDuration("LAUNCHER_SYNC_INTERVAL", 2*time.Minute),
		ModerationInterval: getEnvDuration("LAUNCHER_MODERATION_INTERVAL", time.Minute),
		WebhookInterval:    getEnvDuration("LAUNCHER_WEBHOOK_INTERVAL", 30*time.Second),
		WebhookSigningKey:  getEnv("LAUNCHER_WEBHOOK_SIGNING_KEY", ""),
		OracleEndpoints: map[string]string{
			"fortune":  getEnv("LAUNCHER_FORTUNE_ORACLE_URL", ""),
			"cvat":     getEnv("LAUNCHER_CVAT_ORACLE_URL", ""),
			"audino":   getEnv("LAUNCHER_AUDINO_ORACLE_URL", ""),
			"hcaptcha": getEnv("LAUNCHER_HCAPTCHA_ORACLE_URL", ""),
		},

		EscrowGatewayURL: getEnv("LAUNCHER_ESCROW_GATEWAY_URL", "http://localhost:8090"),

		StorageEndpoint:  getEnv("LAUNCHER_STORAGE_ENDPOINT", "localhost:9000"),
		StorageAccessKey: getEnv("LAUNCHER_STORAGE_ACCESS_KEY", ""),
		StorageSecretKey: getEnv("LAUNCHER_STORAGE_SECRET_KEY", ""),
		StorageUseSSL:    getEnvBool("LAUNCHER_STORAGE_USE_SSL", false),
		ResultsBucket:    getEnv("LAUNCHER_RESULTS_BUCKET", "launcher-results"),

		VisionEndpoint: getEnv("LAUNCHER_VISION_ENDPOINT", ""),
		VisionAPIKey:   getEnv("LAUNCHER_VISION_API_KEY", ""),

		SlackWebhookURL: getEnv("LAUNCHER_SLACK_WEBHOOK_URL", ""),
	}
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvInt64List(key string, defaultVal []int64) []int64 {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []int64
	for _, part := range strings.Split(val, ",") {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return defaultVal
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
