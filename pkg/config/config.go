package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all tokengate service configuration.
type Config struct {
	// Server settings
	ListenAddr string `json:"listen_addr" validate:"required"` // e.g. ":8080"

	// Ethereum RPC endpoint for asset holding checks
	EthereumRPC string `json:"ethereum_rpc" validate:"required"`

	// Optional WebSocket endpoint; enables the transfer watcher
	EthereumWS string `json:"ethereum_ws"`

	// Chain ID (1=mainnet, 11155111=sepolia)
	ChainID int64 `json:"chain_id" validate:"required"`

	// AdminAddress holds the single privileged role
	AdminAddress string `json:"admin_address" validate:"required,eth_addr"`

	// AdminToken authenticates HTTP calls made on behalf of the admin
	AdminToken string `json:"admin_token" validate:"required"`

	// PayoutKey is the hex private key used for treasury withdrawals.
	// Optional; withdrawals fail until it is set.
	PayoutKey string `json:"payout_key"`

	// CacheTTL for entitlement verdicts; 0 disables caching
	CacheTTL time.Duration `json:"cache_ttl"`

	// OracleFailurePolicy: "strict" (a failing asset contract aborts the
	// whole check) or "resilient" (a failing rule counts as not
	// qualifying)
	OracleFailurePolicy string `json:"oracle_failure_policy" validate:"omitempty,oneof=strict resilient"`

	LogLevel string `json:"log_level"`
}

// DefaultConfig returns a config with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:          ":8080",
		EthereumRPC:         "https://rpc.sepolia.org",
		ChainID:             11155111,
		CacheTTL:            30 * time.Second,
		OracleFailurePolicy: "strict",
		LogLevel:            "info",
	}
}

// LoadFromFile reads config from a JSON file, applying defaults for
// missing fields and environment overrides for secrets.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides secret-bearing fields from the environment so they can
// stay out of the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("TOKENGATE_ETH_RPC"); v != "" {
		c.EthereumRPC = v
	}
	if v := os.Getenv("TOKENGATE_ETH_WS"); v != "" {
		c.EthereumWS = v
	}
	if v := os.Getenv("TOKENGATE_ADMIN_TOKEN"); v != "" {
		c.AdminToken = v
	}
	if v := os.Getenv("TOKENGATE_PAYOUT_KEY"); v != "" {
		c.PayoutKey = v
	}
}

// Validate checks that required fields are set and well-formed.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
