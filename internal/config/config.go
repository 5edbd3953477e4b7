// Package config loads HYDRA's process configuration from the environment, with an optional
// .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration for the HYDRA process.
type Config struct {
	// Server
	Port    int
	DevMode bool

	// Database
	DataDir string

	// AWS Bedrock (LLM / embeddings)
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// Per-connector API keys; absence degrades the owning connector, never fails startup.
	FREDAPIKey         string
	WhaleAlertAPIKey   string
	PolymarketAPIKey   string
	GlassnodeAPIKey    string
	UnusualWhalesAPIKey string

	// Inbound message bridge (optional collaborator, out of scope per spec.md §1)
	MessageBridgeToken  string
	MessageBridgeChatID string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables, loading a .env file first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:    getEnvAsInt("HYDRA_PORT", 8088),
		DevMode: getEnvAsBool("DEV_MODE", false),
		DataDir: getEnv("DATA_DIR", "./data"),

		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		FREDAPIKey:          getEnv("FRED_API_KEY", ""),
		WhaleAlertAPIKey:    getEnv("WHALE_ALERT_API_KEY", ""),
		PolymarketAPIKey:    getEnv("POLYMARKET_API_KEY", ""),
		GlassnodeAPIKey:     getEnv("GLASSNODE_API_KEY", ""),
		UnusualWhalesAPIKey: getEnv("UNUSUAL_WHALES_API_KEY", ""),

		MessageBridgeToken:  getEnv("MESSAGE_BRIDGE_TOKEN", ""),
		MessageBridgeChatID: getEnv("MESSAGE_BRIDGE_CHAT_ID", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present. AWS and per-connector keys are
// intentionally optional: every consumer degrades gracefully per SPEC_FULL.md §6.4.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	return nil
}

// HasBedrock reports whether enough credentials are present to attempt Bedrock calls.
func (c *Config) HasBedrock() bool {
	return c.AWSAccessKeyID != "" && c.AWSSecretAccessKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
