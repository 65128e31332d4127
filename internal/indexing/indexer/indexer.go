package indexer

import (
	"context"
	"time"

	"github.com/vietddude/blockwatch/internal/indexing/reorg"
	"github.com/vietddude/blockwatch/internal/infra/chain"
	"github.com/vietddude/blockwatch/internal/infra/storage"
)

// Indexer drives block events from a node into watchers
type Indexer interface {
	// Start begins the indexing process
	Start(ctx context.Context) error

	// Stop gracefully stops the indexer
	Stop() error

	// GetStatus returns current indexing status
	GetStatus() Status
}

type Status struct {
	Running      bool
	CurrentBlock int32
	LatestBlock  int32
	Lag          int64
	Listeners    []string
	LastError    string
}

// Config holds indexer configuration
type Config struct {
	Source    chain.Source
	BlockRepo storage.BlockRepository
	Reorg     reorg.Config

	// Cursors persists the delivery position under CursorName. Without it
	// the position lives in memory and does not survive a restart.
	Cursors    storage.CursorRepository
	CursorName string

	// StartHeight is the first block delivered when nothing is stored yet.
	// A negative value starts at the node's tip.
	StartHeight  int32
	ScanInterval time.Duration
	BatchSize    int
}
