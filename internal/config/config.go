// Package config loads relayer configuration from the environment: a plain
// struct built by a constructor and validated once at startup, reading from
// os.Getenv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every option recognized by the relayer.
type Config struct {
	DatabaseURL      string
	BlockchainRPCURL string
	IssuerPrivateKey string // base58, 32 or 64 bytes once decoded

	Host string
	Port int

	EnableRateLimiting     bool
	EnableBackgroundWorker bool

	RangeAPIKey        string
	RangeAPIURL        string
	RangeRiskThreshold int

	HeliusWebhookSecret    string
	QuicknodeWebhookSecret string

	EnableStaleCrank      bool
	CrankPollInterval     time.Duration
	CrankStaleAfter       time.Duration
	CrankBatchSize        int

	UsePrivateSubmission bool
	PrivateSubmissionTip uint64

	WorkerPollInterval time.Duration
	WorkerBatchSize    int
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		BlockchainRPCURL:       os.Getenv("BLOCKCHAIN_RPC_URL"),
		IssuerPrivateKey:       os.Getenv("ISSUER_PRIVATE_KEY"),
		Host:                   getEnvDefault("HOST", "0.0.0.0"),
		Port:                   getEnvIntDefault("PORT", 8080),
		EnableRateLimiting:     getEnvBoolDefault("ENABLE_RATE_LIMITING", true),
		EnableBackgroundWorker: getEnvBoolDefault("ENABLE_BACKGROUND_WORKER", true),
		RangeAPIKey:            os.Getenv("RANGE_API_KEY"),
		RangeAPIURL:            os.Getenv("RANGE_API_URL"),
		RangeRiskThreshold:     getEnvIntDefault("RANGE_RISK_THRESHOLD", 6),
		HeliusWebhookSecret:    os.Getenv("HELIUS_WEBHOOK_SECRET"),
		QuicknodeWebhookSecret: os.Getenv("QUICKNODE_WEBHOOK_SECRET"),
		EnableStaleCrank:       getEnvBoolDefault("ENABLE_STALE_CRANK", true),
		CrankPollInterval:      time.Duration(getEnvIntDefault("CRANK_POLL_INTERVAL_SECS", 60)) * time.Second,
		CrankStaleAfter:        time.Duration(getEnvIntDefault("CRANK_STALE_AFTER_SECS", 90)) * time.Second,
		CrankBatchSize:         getEnvIntDefault("CRANK_BATCH_SIZE", 20),
		UsePrivateSubmission:   getEnvBoolDefault("USE_PRIVATE_SUBMISSION", false),
		PrivateSubmissionTip:   uint64(getEnvIntDefault("PRIVATE_SUBMISSION_TIP", 0)),
		WorkerPollInterval:     time.Duration(getEnvIntDefault("WORKER_POLL_INTERVAL_SECS", 1)) * time.Second,
		WorkerBatchSize:        getEnvIntDefault("WORKER_BATCH_SIZE", 10),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if c.BlockchainRPCURL == "" {
		return fmt.Errorf("config: BLOCKCHAIN_RPC_URL is required")
	}
	if c.IssuerPrivateKey == "" {
		return fmt.Errorf("config: ISSUER_PRIVATE_KEY is required")
	}
	if c.RangeRiskThreshold < 0 {
		return fmt.Errorf("config: RANGE_RISK_THRESHOLD must be non-negative")
	}
	return nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
