package memory

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/blockwatch/internal/core/domain"
	"github.com/vietddude/blockwatch/internal/infra/storage"
)

func hashOf(b byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = b
	return h
}

func TestBlockRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewBlockRepo(NewMemoryStorage())

	latest, err := repo.GetLatest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	for i := int32(1); i <= 3; i++ {
		require.NoError(t, repo.Save(ctx, &domain.Block{Height: i, Hash: hashOf(byte(i)), ParentHash: hashOf(byte(i - 1))}))
	}

	latest, err = repo.GetLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), latest.Height)

	h, err := repo.BlockHeight(ctx, hashOf(2))
	require.NoError(t, err)
	assert.Equal(t, int32(2), h)

	b, err := repo.GetByHeight(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, hashOf(2), b.Hash)

	require.NoError(t, repo.Delete(ctx, hashOf(3)))
	_, err = repo.BlockHeight(ctx, hashOf(3))
	assert.ErrorIs(t, err, storage.ErrBlockNotFound)

	b, err = repo.GetByHeight(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestBlockRepo_Prune(t *testing.T) {
	ctx := context.Background()
	repo := NewBlockRepo(NewMemoryStorage())
	for i := int32(1); i <= 5; i++ {
		require.NoError(t, repo.Save(ctx, &domain.Block{Height: i, Hash: hashOf(byte(i))}))
	}

	n, err := repo.Prune(ctx, 4, map[chainhash.Hash]struct{}{hashOf(2): {}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for i, kept := range map[byte]bool{1: false, 2: true, 3: false, 4: true, 5: true} {
		_, err := repo.BlockHeight(ctx, hashOf(i))
		if kept {
			assert.NoError(t, err, "block %d", i)
		} else {
			assert.ErrorIs(t, err, storage.ErrBlockNotFound, "block %d", i)
		}
	}
}

func TestBlockRepo_SaveReplacesHeight(t *testing.T) {
	ctx := context.Background()
	repo := NewBlockRepo(NewMemoryStorage())

	require.NoError(t, repo.Save(ctx, &domain.Block{Height: 5, Hash: hashOf(5)}))
	require.NoError(t, repo.Save(ctx, &domain.Block{Height: 5, Hash: hashOf(50)}))

	_, err := repo.BlockHeight(ctx, hashOf(5))
	assert.ErrorIs(t, err, storage.ErrBlockNotFound)

	b, err := repo.GetByHash(ctx, hashOf(50))
	require.NoError(t, err)
	assert.Equal(t, int32(5), b.Height)
}

func TestWatchRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewWatchRepo[domain.TransactionWatch[string]]()

	w1 := domain.NewTransactionWatch("a", hashOf(1), hashOf(10))
	w2 := domain.NewTransactionWatch("b", hashOf(1), hashOf(11))
	w3 := domain.NewTransactionWatch("c", hashOf(2), hashOf(12))
	require.NoError(t, repo.AddBatch(ctx, []domain.TransactionWatch[string]{w1, w2}))
	require.NoError(t, repo.AddBatch(ctx, []domain.TransactionWatch[string]{w3}))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].Context)
	assert.Equal(t, "c", list[2].Context)

	require.NoError(t, repo.Remove(ctx, w2.ID))
	require.NoError(t, repo.Remove(ctx, w2.ID), "removing twice is a no-op")

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Snapshot is not affected by later mutations.
	require.NoError(t, repo.Remove(ctx, w1.ID))
	assert.Len(t, list, 3)
}

func TestTrackedTxRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewTrackedTxRepo(NewMemoryStorage())

	now := time.Now()
	require.NoError(t, repo.Save(ctx, &domain.TrackedTransaction{TxHash: hashOf(2), Reference: "second", CreatedAt: now.Add(time.Second)}))
	require.NoError(t, repo.Save(ctx, &domain.TrackedTransaction{TxHash: hashOf(1), Reference: "first", CreatedAt: now}))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "first", all[0].Reference)

	require.NoError(t, repo.Delete(ctx, hashOf(1)))
	got, err := repo.GetByHash(ctx, hashOf(1))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWalletRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewWalletRepo(NewMemoryStorage())

	require.NoError(t, repo.Save(ctx, &domain.WalletAddress{Address: "mzB", Reference: "b"}))
	require.NoError(t, repo.Save(ctx, &domain.WalletAddress{Address: "mzA", Reference: "a"}))

	w, err := repo.GetByAddress(ctx, "mzA")
	require.NoError(t, err)
	assert.Equal(t, "a", w.Reference)

	w, err = repo.GetByAddress(ctx, "mza")
	require.NoError(t, err)
	assert.Nil(t, w, "addresses are case sensitive")

	require.NoError(t, repo.Delete(ctx, "mzB"))
	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "mzA", all[0].Address)
}

func TestCursorRepo_SaveReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewCursorRepo(NewMemoryStorage())

	cur, err := repo.Get(ctx, "mainnet")
	require.NoError(t, err)
	assert.Nil(t, cur)

	saved := &domain.Cursor{
		Name:      "mainnet",
		BlockHash: hashOf(3),
		Height:    3,
		EventType: domain.BlockAdded,
		State:     domain.CursorStateDelivering,
	}
	require.NoError(t, repo.Save(ctx, saved))
	saved.NextListener = 5

	cur, err = repo.Get(ctx, "mainnet")
	require.NoError(t, err)
	assert.Equal(t, 0, cur.NextListener)
	assert.True(t, cur.Is(hashOf(3), domain.BlockAdded))
	assert.False(t, cur.Is(hashOf(3), domain.BlockRemoving))

	cur.Height = 9
	again, err := repo.Get(ctx, "mainnet")
	require.NoError(t, err)
	assert.Equal(t, int32(3), again.Height)
}
