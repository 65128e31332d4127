package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"

	"github.com/vietddude/blockwatch/internal/core/domain"
	"github.com/vietddude/blockwatch/internal/infra/storage"
)

type MemoryStorage struct {
	blocks  map[chainhash.Hash]*domain.Block
	heights map[int32]chainhash.Hash
	tracked map[chainhash.Hash]*domain.TrackedTransaction
	wallets map[string]*domain.WalletAddress
	cursors map[string]*domain.Cursor
	mu      sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		blocks:  make(map[chainhash.Hash]*domain.Block),
		heights: make(map[int32]chainhash.Hash),
		tracked: make(map[chainhash.Hash]*domain.TrackedTransaction),
		wallets: make(map[string]*domain.WalletAddress),
		cursors: make(map[string]*domain.Cursor),
	}
}

// -----------------------------------------------------------------------------
// Block Repository
// -----------------------------------------------------------------------------

type BlockRepo struct {
	store *MemoryStorage
}

func NewBlockRepo(store *MemoryStorage) *BlockRepo {
	return &BlockRepo{store: store}
}

func (r *BlockRepo) Save(ctx context.Context, block *domain.Block) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if prev, ok := r.store.heights[block.Height]; ok {
		delete(r.store.blocks, prev)
	}
	b := *block
	r.store.blocks[block.Hash] = &b
	r.store.heights[block.Height] = block.Hash
	return nil
}

func (r *BlockRepo) GetByHash(ctx context.Context, hash chainhash.Hash) (*domain.Block, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.blocks[hash], nil
}

func (r *BlockRepo) GetByHeight(ctx context.Context, height int32) (*domain.Block, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	hash, ok := r.store.heights[height]
	if !ok {
		return nil, nil
	}
	return r.store.blocks[hash], nil
}

func (r *BlockRepo) GetLatest(ctx context.Context) (*domain.Block, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var max *domain.Block
	for _, b := range r.store.blocks {
		if max == nil || b.Height > max.Height {
			max = b
		}
	}
	return max, nil
}

func (r *BlockRepo) Delete(ctx context.Context, hash chainhash.Hash) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	b, ok := r.store.blocks[hash]
	if !ok {
		return nil
	}
	delete(r.store.blocks, hash)
	if r.store.heights[b.Height] == hash {
		delete(r.store.heights, b.Height)
	}
	return nil
}

func (r *BlockRepo) BlockHeight(ctx context.Context, hash chainhash.Hash) (int32, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	b, ok := r.store.blocks[hash]
	if !ok {
		return 0, fmt.Errorf("%w: %s", storage.ErrBlockNotFound, hash)
	}
	return b.Height, nil
}

func (r *BlockRepo) Prune(ctx context.Context, below int32, keep map[chainhash.Hash]struct{}) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	deleted := 0
	for height, hash := range r.store.heights {
		if height >= below {
			continue
		}
		if _, ok := keep[hash]; ok {
			continue
		}
		delete(r.store.heights, height)
		delete(r.store.blocks, hash)
		deleted++
	}
	return deleted, nil
}

// -----------------------------------------------------------------------------
// Watch Repository
// -----------------------------------------------------------------------------

// WatchRepo is an in-memory storage.WatchRepository for any watch kind.
type WatchRepo[W storage.Identified] struct {
	mu      sync.RWMutex
	watches []W
}

func NewWatchRepo[W storage.Identified]() *WatchRepo[W] {
	return &WatchRepo[W]{}
}

func (r *WatchRepo[W]) List(ctx context.Context) ([]W, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]W, len(r.watches))
	copy(out, r.watches)
	return out, nil
}

func (r *WatchRepo[W]) AddBatch(ctx context.Context, watches []W) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watches = append(r.watches, watches...)
	return nil
}

func (r *WatchRepo[W]) Remove(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, w := range r.watches {
		if w.WatchID() == id {
			r.watches = append(r.watches[:i], r.watches[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *WatchRepo[W]) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.watches), nil
}

// -----------------------------------------------------------------------------
// Tracked Transaction Repository
// -----------------------------------------------------------------------------

type TrackedTxRepo struct {
	store *MemoryStorage
}

func NewTrackedTxRepo(store *MemoryStorage) *TrackedTxRepo {
	return &TrackedTxRepo{store: store}
}

func (r *TrackedTxRepo) Save(ctx context.Context, tx *domain.TrackedTransaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t := *tx
	r.store.tracked[tx.TxHash] = &t
	return nil
}

func (r *TrackedTxRepo) GetByHash(ctx context.Context, hash chainhash.Hash) (*domain.TrackedTransaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.tracked[hash], nil
}

func (r *TrackedTxRepo) GetAll(ctx context.Context) ([]*domain.TrackedTransaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.TrackedTransaction, 0, len(r.store.tracked))
	for _, t := range r.store.tracked {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *TrackedTxRepo) Delete(ctx context.Context, hash chainhash.Hash) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.tracked, hash)
	return nil
}

// -----------------------------------------------------------------------------
// Wallet Repository
// -----------------------------------------------------------------------------

type WalletRepo struct {
	store *MemoryStorage
}

func NewWalletRepo(store *MemoryStorage) *WalletRepo {
	return &WalletRepo{store: store}
}

func (r *WalletRepo) Save(ctx context.Context, wallet *domain.WalletAddress) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	w := *wallet
	r.store.wallets[wallet.Address] = &w
	return nil
}

func (r *WalletRepo) GetByAddress(ctx context.Context, address string) (*domain.WalletAddress, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.wallets[address], nil
}

func (r *WalletRepo) GetAll(ctx context.Context) ([]*domain.WalletAddress, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.WalletAddress, 0, len(r.store.wallets))
	for _, w := range r.store.wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (r *WalletRepo) Delete(ctx context.Context, address string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.wallets, address)
	return nil
}

// -----------------------------------------------------------------------------
// Cursor Repository
// -----------------------------------------------------------------------------

type CursorRepo struct {
	store *MemoryStorage
}

func NewCursorRepo(store *MemoryStorage) *CursorRepo {
	return &CursorRepo{store: store}
}

func (r *CursorRepo) Get(ctx context.Context, name string) (*domain.Cursor, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	c, ok := r.store.cursors[name]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *CursorRepo) Save(ctx context.Context, cursor *domain.Cursor) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c := *cursor
	r.store.cursors[cursor.Name] = &c
	return nil
}

var (
	_ storage.CursorRepository                              = (*CursorRepo)(nil)
	_ storage.BlockRepository                               = (*BlockRepo)(nil)
	_ storage.WatchRepository[domain.TransactionWatch[int]] = (*WatchRepo[domain.TransactionWatch[int]])(nil)
	_ storage.TrackedTransactionRepository                  = (*TrackedTxRepo)(nil)
	_ storage.WalletRepository                              = (*WalletRepo)(nil)
)
