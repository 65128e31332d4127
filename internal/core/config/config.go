package config

import (
	"time"

	"github.com/vietddude/blockwatch/internal/infra/chain/bitcoin"
	redisclient "github.com/vietddude/blockwatch/internal/infra/redis"
	"github.com/vietddude/blockwatch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Node     bitcoin.Config     `yaml:"node"`
	Database postgres.Config    `yaml:"database"` // empty URL = in-memory storage
	Redis    redisclient.Config `yaml:"redis"`    // empty URL = events are logged
	Sync     SyncConfig         `yaml:"sync"`
	Watching WatchingConfig     `yaml:"watching"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// SyncConfig holds block pipeline settings.
type SyncConfig struct {
	// StartHeight is the first block scanned on an empty store. Unset starts
	// at the node's tip.
	StartHeight   *int32        `yaml:"start_height"`
	ScanInterval  time.Duration `yaml:"scan_interval"`
	BatchSize     int           `yaml:"batch_size"`
	MaxReorgDepth int           `yaml:"max_reorg_depth"`
	// KeepBlocks bounds stored history below the tip; blocks anchoring
	// active watches are always kept. 0 keeps everything.
	KeepBlocks    int32         `yaml:"keep_blocks"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// WatchingConfig selects the trackers to run.
type WatchingConfig struct {
	Transactions bool `yaml:"transactions"`
	Balances     bool `yaml:"balances"`
}

// StartHeightOrTip returns the configured start height, or -1 for the tip.
func (s SyncConfig) StartHeightOrTip() int32 {
	if s.StartHeight == nil {
		return -1
	}
	return *s.StartHeight
}
