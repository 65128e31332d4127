package reorg

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/vietddude/blockwatch/internal/core/domain"
	"github.com/vietddude/blockwatch/internal/infra/storage"
)

// ErrReorgTooDeep is returned when no common ancestor is found within
// Config.MaxDepth blocks.
var ErrReorgTooDeep = errors.New("reorg depth exceeds limit")

// Detector checks for chain reorganizations.
type Detector struct {
	config    Config
	blockRepo storage.BlockRepository
}

// ReorgInfo contains information about a detected reorganization.
type ReorgInfo struct {
	Detected bool
	Depth    int
	// SafeHeight is the highest stored block still on the node's chain, or
	// the height below the oldest stored block when none is.
	SafeHeight int32
	SafeHash   chainhash.Hash
	// Orphaned lists the stored blocks no longer on the node's chain, tip first.
	Orphaned []*domain.Block
}

// CheckParentHash verifies a new block's parent hash matches the stored block
// below it.
func (d *Detector) CheckParentHash(
	ctx context.Context,
	newHeight int32,
	parentHash chainhash.Hash,
	bestHeight int32,
	fetch HashFetcher,
) (*ReorgInfo, error) {
	if newHeight == 0 {
		return &ReorgInfo{}, nil
	}

	stored, err := d.blockRepo.GetByHeight(ctx, newHeight-1)
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", newHeight-1, err)
	}

	// Block not in DB - nothing to compare against
	if stored == nil || stored.Hash == parentHash {
		return &ReorgInfo{}, nil
	}

	return d.findSafePoint(ctx, newHeight-1, bestHeight, fetch)
}

// CheckTip verifies the stored tip is still on the node's best chain.
func (d *Detector) CheckTip(ctx context.Context, bestHeight int32, fetch HashFetcher) (*ReorgInfo, error) {
	tip, err := d.blockRepo.GetLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stored tip: %w", err)
	}
	if tip == nil {
		return &ReorgInfo{}, nil
	}

	if tip.Height <= bestHeight {
		nodeHash, err := fetch(ctx, tip.Height)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch hash at %d: %w", tip.Height, err)
		}
		if nodeHash == tip.Hash {
			return &ReorgInfo{}, nil
		}
	}

	return d.findSafePoint(ctx, tip.Height, bestHeight, fetch)
}

// findSafePoint walks backwards from height until the stored hash matches
// the node's. Stored blocks above bestHeight are orphaned without a lookup.
func (d *Detector) findSafePoint(
	ctx context.Context,
	height int32,
	bestHeight int32,
	fetch HashFetcher,
) (*ReorgInfo, error) {
	info := &ReorgInfo{Detected: true}

	for h := height; ; h-- {
		block, err := d.blockRepo.GetByHeight(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("failed to get block %d: %w", h, err)
		}
		if block == nil {
			// Reached beginning of our stored data
			info.SafeHeight = h
			break
		}

		if h <= bestHeight {
			nodeHash, err := fetch(ctx, h)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch hash at %d: %w", h, err)
			}
			if nodeHash == block.Hash {
				info.SafeHeight = h
				info.SafeHash = block.Hash
				break
			}
		}

		info.Orphaned = append(info.Orphaned, block)
		if len(info.Orphaned) > d.config.MaxDepth {
			return nil, fmt.Errorf("%w: more than %d blocks", ErrReorgTooDeep, d.config.MaxDepth)
		}
	}

	info.Depth = len(info.Orphaned)
	return info, nil
}
