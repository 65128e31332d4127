package reorg

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/blockwatch/internal/indexing/metrics"
	"github.com/vietddude/blockwatch/internal/infra/storage"
)

// Handler executes reorg rollback operations.
type Handler struct {
	blockRepo storage.BlockRepository
	notify    Notifier
}

// RollbackResult contains the result of a rollback operation.
type RollbackResult struct {
	OrphanedBlocks int
	SafeHeight     int32
	Duration       time.Duration
}

// Rollback removes orphaned blocks tip first. Each block is deleted only
// after its removing event was delivered; on error the remaining blocks stay
// stored and a later CheckTip detects them again.
func (h *Handler) Rollback(ctx context.Context, info *ReorgInfo) (*RollbackResult, error) {
	start := time.Now()
	result := &RollbackResult{SafeHeight: info.SafeHeight}

	for _, block := range info.Orphaned {
		if err := h.notify(ctx, block.HeaderOnly(), block.Height); err != nil {
			return result, fmt.Errorf("failed to notify removal of block %d (%s): %w", block.Height, block.Hash, err)
		}
		if err := h.blockRepo.Delete(ctx, block.Hash); err != nil {
			return result, fmt.Errorf("failed to delete block %d (%s): %w", block.Height, block.Hash, err)
		}
		result.OrphanedBlocks++
	}

	result.Duration = time.Since(start)
	metrics.ReorgsDetected.Observe(float64(result.OrphanedBlocks))
	slog.Warn("Chain reorganization rolled back",
		"orphaned", result.OrphanedBlocks,
		"safe_height", result.SafeHeight,
		"duration", result.Duration,
	)
	return result, nil
}
