package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/vietddude/blockwatch/internal/infra/storage"
)

// AnchorSource lists the blocks active watches depend on.
type AnchorSource func(ctx context.Context) ([]chainhash.Hash, error)

// PrunerConfig holds retention settings.
type PrunerConfig struct {
	// KeepBlocks is how many blocks below the stored tip are retained.
	// 0 disables pruning.
	KeepBlocks int32
	Interval   time.Duration
}

// Pruner deletes old blocks that no active watch is anchored to.
type Pruner struct {
	cfg       PrunerConfig
	blockRepo storage.BlockRepository
	anchors   []AnchorSource
}

// NewPruner creates a new Pruner worker.
func NewPruner(cfg PrunerConfig, blockRepo storage.BlockRepository, anchors ...AnchorSource) *Pruner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Pruner{
		cfg:       cfg,
		blockRepo: blockRepo,
		anchors:   anchors,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.cfg.KeepBlocks <= 0 {
		return // Retention disabled
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := p.Prune(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Failed to prune blocks", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Prune runs one pass and returns the number of deleted blocks.
func (p *Pruner) Prune(ctx context.Context) (int, error) {
	tip, err := p.blockRepo.GetLatest(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get stored tip: %w", err)
	}
	if tip == nil || tip.Height <= p.cfg.KeepBlocks {
		return 0, nil
	}

	keep := make(map[chainhash.Hash]struct{})
	for _, list := range p.anchors {
		hashes, err := list(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to list anchors: %w", err)
		}
		for _, h := range hashes {
			keep[h] = struct{}{}
		}
	}

	below := tip.Height - p.cfg.KeepBlocks
	n, err := p.blockRepo.Prune(ctx, below, keep)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("Pruned blocks", "below", below, "deleted", n, "anchored", len(keep))
	}
	return n, nil
}

// Anchors adapts a watch listing to an AnchorSource.
func Anchors[W interface{ Anchor() chainhash.Hash }](list func(ctx context.Context) ([]W, error)) AnchorSource {
	return func(ctx context.Context) ([]chainhash.Hash, error) {
		watches, err := list(ctx)
		if err != nil {
			return nil, err
		}
		hashes := make([]chainhash.Hash, len(watches))
		for i, w := range watches {
			hashes[i] = w.Anchor()
		}
		return hashes, nil
	}
}
