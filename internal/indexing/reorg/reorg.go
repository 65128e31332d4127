// Package reorg handles blockchain reorganization detection and rollback.
//
// # Detection
//
// Two checks are used:
//   - Parent hash: when block N is fetched its parent hash is already known
//     and is compared with the stored block N-1 (0 extra RPC calls).
//   - Tip check: the stored tip is compared with the node's hash at the same
//     height, which catches reorgs that did not grow the chain.
//
// On a mismatch the detector walks backwards, asking the node for the hash at
// each stored height, until both chains agree.
//
// # Rollback
//
//  1. For every orphaned block, tip first, notify watchers with a removing event
//  2. Delete the block from storage once every watcher has seen it
//
// Watchers therefore still resolve the removed block's height while handling
// its removing event.
//
// # Usage
//
//	detector := reorg.NewDetector(reorg.Config{MaxDepth: 100}, blockRepo)
//	handler := reorg.NewHandler(blockRepo, notify)
//
//	if info, _ := detector.CheckTip(ctx, best, source.BlockHash); info.Detected {
//	    handler.Rollback(ctx, info)
//	}
package reorg

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/vietddude/blockwatch/internal/infra/storage"
)

// HashFetcher fetches the node's block hash at a height (used when finding
// the safe point).
type HashFetcher func(ctx context.Context, height int32) (chainhash.Hash, error)

// Notifier delivers a removing event for an orphaned block.
type Notifier func(ctx context.Context, block *wire.MsgBlock, height int32) error

// Config holds configuration for reorg detection.
type Config struct {
	MaxDepth int `yaml:"max_depth"` // Maximum depth to search for a safe point (default: 100)
}

// NewDetector creates a new reorg detector.
func NewDetector(config Config, blockRepo storage.BlockRepository) *Detector {
	if config.MaxDepth <= 0 {
		config.MaxDepth = 100
	}
	return &Detector{
		config:    config,
		blockRepo: blockRepo,
	}
}

// NewHandler creates a new reorg handler.
func NewHandler(blockRepo storage.BlockRepository, notify Notifier) *Handler {
	return &Handler{
		blockRepo: blockRepo,
		notify:    notify,
	}
}
