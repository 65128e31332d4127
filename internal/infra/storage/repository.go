package storage

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"

	"github.com/vietddude/blockwatch/internal/core/domain"
)

var (
	// ErrBlockNotFound is returned when a block hash is not part of the stored chain
	ErrBlockNotFound = errors.New("block not found")
)

// Identified is implemented by every stored watch.
type Identified interface {
	WatchID() uuid.UUID
}

// BlockRepository handles storage of the canonical chain seen by the synchronizer
type BlockRepository interface {
	// Save saves a block, replacing any block stored at the same height
	Save(ctx context.Context, block *domain.Block) error

	// GetByHash retrieves a block by hash. Returns nil when absent.
	GetByHash(ctx context.Context, hash chainhash.Hash) (*domain.Block, error)

	// GetByHeight retrieves a block by height. Returns nil when absent.
	GetByHeight(ctx context.Context, height int32) (*domain.Block, error)

	// GetLatest retrieves the stored tip. Returns nil when the store is empty.
	GetLatest(ctx context.Context) (*domain.Block, error)

	// Delete deletes a block (reorg rollback)
	Delete(ctx context.Context, hash chainhash.Hash) error

	// BlockHeight returns the height of a stored block, or an error wrapping
	// ErrBlockNotFound.
	BlockHeight(ctx context.Context, hash chainhash.Hash) (int32, error)

	// Prune deletes blocks below height except those in keep, returning the
	// number deleted.
	Prune(ctx context.Context, below int32, keep map[chainhash.Hash]struct{}) (int, error)
}

// CursorRepository handles cursor storage operations
type CursorRepository interface {
	// Get retrieves a cursor by name. Returns nil when absent.
	Get(ctx context.Context, name string) (*domain.Cursor, error)

	// Save creates or replaces a cursor
	Save(ctx context.Context, cursor *domain.Cursor) error
}

// WatchRepository holds the active watches of one kind
type WatchRepository[W Identified] interface {
	// List returns a snapshot of all active watches in insertion order
	List(ctx context.Context) ([]W, error)

	// AddBatch saves watches atomically
	AddBatch(ctx context.Context, watches []W) error

	// Remove deletes a watch. Removing an absent watch is not an error.
	Remove(ctx context.Context, id uuid.UUID) error

	// Count returns the number of active watches
	Count(ctx context.Context) (int, error)
}

// TrackedTransactionRepository handles transaction confirmation requests
type TrackedTransactionRepository interface {
	// Save saves or replaces a request
	Save(ctx context.Context, tx *domain.TrackedTransaction) error

	// GetByHash retrieves a request. Returns nil when absent.
	GetByHash(ctx context.Context, hash chainhash.Hash) (*domain.TrackedTransaction, error)

	// GetAll retrieves all requests
	GetAll(ctx context.Context) ([]*domain.TrackedTransaction, error)

	// Delete deletes a request
	Delete(ctx context.Context, hash chainhash.Hash) error
}

// WalletRepository handles wallet address storage
type WalletRepository interface {
	// Save saves a wallet address
	Save(ctx context.Context, wallet *domain.WalletAddress) error

	// GetByAddress retrieves a wallet by address. Returns nil when absent.
	GetByAddress(ctx context.Context, address string) (*domain.WalletAddress, error)

	// GetAll retrieves all wallet addresses
	GetAll(ctx context.Context) ([]*domain.WalletAddress, error)

	// Delete stops monitoring an address
	Delete(ctx context.Context, address string) error
}
