package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/blockwatch/internal/infra/chain/bitcoin"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Node.Network == "" {
		cfg.Node.Network = "mainnet"
	}
	if cfg.Node.Retry.MaxAttempts == 0 {
		cfg.Node.Retry = bitcoin.DefaultRetryConfig
	}
	if cfg.Sync.ScanInterval == 0 {
		cfg.Sync.ScanInterval = 10 * time.Second
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 50
	}
	if cfg.Sync.MaxReorgDepth == 0 {
		cfg.Sync.MaxReorgDepth = 100
	}
	if !cfg.Watching.Transactions && !cfg.Watching.Balances {
		cfg.Watching.Transactions = true
		cfg.Watching.Balances = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no sensible default.
func (c *AppConfig) Validate() error {
	if c.Node.URL == "" {
		return fmt.Errorf("node.url is required")
	}
	if _, err := bitcoin.Params(c.Node.Network); err != nil {
		return err
	}
	if c.Sync.BatchSize < 0 {
		return fmt.Errorf("sync.batch_size must not be negative")
	}
	if c.Sync.KeepBlocks > 0 && int(c.Sync.KeepBlocks) < c.Sync.MaxReorgDepth {
		return fmt.Errorf("sync.keep_blocks must be at least sync.max_reorg_depth (%d)", c.Sync.MaxReorgDepth)
	}
	return nil
}
