package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPPort string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisURL string

	Marketplace MarketplaceConfig
	Relevance   RelevanceConfig
	Sourcing    SourcingConfig
	Worker      WorkerConfig
}

// MarketplaceConfig holds the external marketplace endpoints.
type MarketplaceConfig struct {
	RESTBaseURL    string
	SearchBaseURL  string
	RequestTimeout time.Duration
	RatePerSecond  float64
	RateBurst      int
}

// RelevanceConfig holds the external relevance scorer settings.
// An empty APIKey disables AI filtering; pipelines fall back to
// unfiltered candidate sets.
type RelevanceConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// SourcingConfig holds the supplier platform gateways. An empty base URL
// disables that source.
type SourcingConfig struct {
	C1688BaseURL   string
	AlibabaBaseURL string
	RequestTimeout time.Duration
	SearchLimit    int
}

// WorkerConfig holds queue consumer settings.
type WorkerConfig struct {
	ReanalysisEvery  time.Duration
	CompetitorEvery  time.Duration
	PollInterval     time.Duration
	JobAttempts      int
	BackoffBaseDelay time.Duration
}

// Module provides Config and the policy holder to the fx graph.
var Module = fx.Options(
	fx.Provide(Load),
	fx.Provide(NewPolicyHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "marketpulse"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPPort: getenv("HTTP_PORT", "8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "marketpulse"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisURL: getenv("REDIS_URL", "redis://localhost:6379"),

		Marketplace: MarketplaceConfig{
			RESTBaseURL:    getenv("MARKETPLACE_REST_URL", "https://api.uzum.uz/api/v2"),
			SearchBaseURL:  getenv("MARKETPLACE_SEARCH_URL", "https://graphql.uzum.uz"),
			RequestTimeout: getenvDuration("MARKETPLACE_TIMEOUT", 15*time.Second),
			RatePerSecond:  getenvFloat("MARKETPLACE_RATE_PER_SECOND", 5),
			RateBurst:      getenvInt("MARKETPLACE_RATE_BURST", 5),
		},
		Relevance: RelevanceConfig{
			BaseURL: getenv("RELEVANCE_BASE_URL", "https://api.anthropic.com/v1/messages"),
			APIKey:  strings.TrimSpace(getenv("RELEVANCE_API_KEY", "")),
			Model:   getenv("RELEVANCE_MODEL", "claude-haiku-4-5-20251001"),
			Timeout: getenvDuration("RELEVANCE_TIMEOUT", 30*time.Second),
		},
		Sourcing: SourcingConfig{
			C1688BaseURL:   getenv("SOURCING_1688_URL", "https://gw.1688-proxy.bozorlab.uz"),
			AlibabaBaseURL: getenv("SOURCING_ALIBABA_URL", "https://gw.alibaba-proxy.bozorlab.uz"),
			RequestTimeout: getenvDuration("SOURCING_TIMEOUT", 20*time.Second),
			SearchLimit:    getenvInt("SOURCING_SEARCH_LIMIT", 20),
		},
		Worker: WorkerConfig{
			ReanalysisEvery:  getenvDuration("REANALYSIS_EVERY", 24*time.Hour),
			CompetitorEvery:  getenvDuration("COMPETITOR_EVERY", 6*time.Hour),
			PollInterval:     getenvDuration("QUEUE_POLL_INTERVAL", time.Second),
			JobAttempts:      getenvInt("QUEUE_JOB_ATTEMPTS", 3),
			BackoffBaseDelay: getenvDuration("QUEUE_BACKOFF_BASE", 5*time.Second),
		},
	}
}

func getenv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw := getenv(key, "")
	if raw == "" {
		return fallback
	}
	if value, err := strconv.Atoi(raw); err == nil {
		return value
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	raw := getenv(key, "")
	if raw == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(raw, 64); err == nil {
		return value
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := getenv(key, "")
	if raw == "" {
		return fallback
	}
	if value, err := time.ParseDuration(raw); err == nil {
		return value
	}
	return fallback
}
