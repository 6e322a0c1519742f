// Package config loads service configuration from an optional YAML file
// overridden by SOLANAPAY_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/mechanisms/svm"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SOLANAPAY_"

// Config holds all configuration for the service and CLI
type Config struct {
	Ledger   LedgerConfig   `yaml:"ledger"`
	Merchant MerchantConfig `yaml:"merchant"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// LedgerConfig holds RPC connection settings
type LedgerConfig struct {
	Cluster    string  `yaml:"cluster"`
	RPCURL     string  `yaml:"rpc_url"` // overrides the cluster default
	Commitment string  `yaml:"commitment"`
	RPS        float64 `yaml:"rps"`
	Burst      int     `yaml:"burst"`
}

// MerchantConfig holds checkout settings
type MerchantConfig struct {
	Recipient    string        `yaml:"recipient"`
	Label        string        `yaml:"label"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
	ReceiptTTL   time.Duration `yaml:"receipt_ttl"` // 0 keeps receipts forever
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Listen       string        `yaml:"listen"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Ledger: LedgerConfig{
			Cluster:    svm.ClusterDevnet,
			Commitment: string(solanapay.DefaultCommitment),
			RPS:        10,
			Burst:      5,
		},
		Merchant: MerchantConfig{
			PollInterval: 250 * time.Millisecond,
			PollTimeout:  2 * time.Minute,
		},
		Server: ServerConfig{
			Listen:       ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 3 * time.Minute, // outlasts a ?wait=true poll
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load reads path (skipped when empty), then applies environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Ledger.Cluster = getEnv("CLUSTER", c.Ledger.Cluster)
	c.Ledger.RPCURL = getEnv("RPC_URL", c.Ledger.RPCURL)
	c.Ledger.Commitment = getEnv("COMMITMENT", c.Ledger.Commitment)
	c.Ledger.RPS = getEnvFloat("RPC_RPS", c.Ledger.RPS)
	c.Ledger.Burst = getEnvInt("RPC_BURST", c.Ledger.Burst)

	c.Merchant.Recipient = getEnv("RECIPIENT", c.Merchant.Recipient)
	c.Merchant.Label = getEnv("LABEL", c.Merchant.Label)
	c.Merchant.PollInterval = getEnvDuration("POLL_INTERVAL", c.Merchant.PollInterval)
	c.Merchant.PollTimeout = getEnvDuration("POLL_TIMEOUT", c.Merchant.PollTimeout)
	c.Merchant.ReceiptTTL = getEnvDuration("RECEIPT_TTL", c.Merchant.ReceiptTTL)

	c.Server.Listen = getEnv("LISTEN", c.Server.Listen)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)

	c.Metrics.Enabled = getEnvBool("METRICS", c.Metrics.Enabled)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Ledger.RPCURL == "" && !svm.IsValidNetwork(c.Ledger.Cluster) {
		return fmt.Errorf("unknown cluster %q and no rpc_url set", c.Ledger.Cluster)
	}
	commitment, err := solanapay.ParseCommitment(c.Ledger.Commitment)
	if err != nil {
		return err
	}
	// Transactions cannot be fetched below confirmed.
	if !commitment.Satisfies(solanapay.CommitmentConfirmed) {
		return fmt.Errorf("commitment must be confirmed or finalized, got %q", commitment)
	}
	if c.Ledger.RPS <= 0 {
		return fmt.Errorf("rps must be positive")
	}
	if c.Merchant.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.Merchant.PollTimeout <= 0 {
		return fmt.Errorf("poll_timeout must be positive")
	}
	if c.Merchant.Recipient != "" {
		if _, err := svm.ValidateAddress(c.Merchant.Recipient); err != nil {
			return fmt.Errorf("recipient: %w", err)
		}
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// RPCURL returns the configured endpoint, falling back to the cluster default.
func (c *Config) RPCURL() string {
	if c.Ledger.RPCURL != "" {
		return c.Ledger.RPCURL
	}
	network, err := svm.GetNetworkConfig(c.Ledger.Cluster)
	if err != nil {
		return ""
	}
	return network.RPCURL
}

// Commitment returns the parsed ledger commitment.
func (c *Config) Commitment() solanapay.Commitment {
	return solanapay.Commitment(c.Ledger.Commitment)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
