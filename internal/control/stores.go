package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/blockwatch/internal/indexing/tracker"
	"github.com/vietddude/blockwatch/internal/infra/storage"
	"github.com/vietddude/blockwatch/internal/infra/storage/memory"
	"github.com/vietddude/blockwatch/internal/infra/storage/postgres"
)

// Stores groups the repositories used by the service.
type Stores struct {
	Blocks         storage.BlockRepository
	Tracked        storage.TrackedTransactionRepository
	Wallets        storage.WalletRepository
	TxWatches      storage.WatchRepository[tracker.TransactionWatch]
	BalanceWatches storage.WatchRepository[tracker.BalanceWatch]
	Cursors        storage.CursorRepository

	db *postgres.DB
}

// OpenStores connects to PostgreSQL and applies migrations, or falls back to
// in-memory storage when no URL is configured.
func OpenStores(ctx context.Context, cfg postgres.Config) (*Stores, error) {
	if cfg.URL == "" {
		slog.Info("Using memory storage")
		store := memory.NewMemoryStorage()
		return &Stores{
			Blocks:         memory.NewBlockRepo(store),
			Tracked:        memory.NewTrackedTxRepo(store),
			Wallets:        memory.NewWalletRepo(store),
			TxWatches:      memory.NewWatchRepo[tracker.TransactionWatch](),
			BalanceWatches: memory.NewWatchRepo[tracker.BalanceWatch](),
			Cursors:        memory.NewCursorRepo(store),
		}, nil
	}

	db, err := postgres.NewDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}

	slog.Info("Using PostgreSQL storage")
	return &Stores{
		Blocks:         postgres.NewBlockRepo(db),
		Tracked:        postgres.NewTrackedTxRepo(db),
		Wallets:        postgres.NewWalletRepo(db),
		TxWatches:      postgres.NewTransactionWatchRepo[tracker.TxRequest](db),
		BalanceWatches: postgres.NewBalanceWatchRepo[tracker.AddressContext](db),
		Cursors:        postgres.NewCursorRepo(db),
		db:             db,
	}, nil
}

// DB returns the database handle, or nil for memory storage.
func (s *Stores) DB() *postgres.DB {
	return s.db
}

// Close releases the database connection.
func (s *Stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
