package watching

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/blockwatch/internal/core/domain"
	"github.com/vietddude/blockwatch/internal/infra/storage"
)

func TestTransactionWatcher_CreatesWatchAnchoredAtBlock(t *testing.T) {
	heights := newFakeHeights()
	handler := newFakeTxHandler(6)

	t1 := newTx(1)
	other := newTx(2)
	b100 := newBlock(100, t1, other)
	b100Hash := heights.set(b100, 100)
	handler.contexts[t1.TxHash()] = []string{"req-1"}

	watcher := NewTransactionConfirmationWatcher[string](handler, heights)

	removals, err := watcher.Execute(context.Background(), b100, 100, domain.BlockAdded)
	require.NoError(t, err)
	assert.Empty(t, removals)

	require.Len(t, handler.batches, 1, "new watches are persisted as one batch")
	require.Len(t, handler.watches, 1)
	w := handler.watches[0]
	assert.Equal(t, b100Hash, w.StartBlock)
	assert.Equal(t, t1.TxHash(), w.TransactionID)
	assert.Equal(t, "req-1", w.Context)
	assert.Equal(t, 2, handler.createCalls, "CreateContexts is called once per transaction")

	require.Len(t, handler.decisions, 1)
	assert.Equal(t, decision{confirmation: 1, ctype: domain.Confirmed}, handler.decisions[0])
}

func TestTransactionWatcher_ConfirmationGrowsWithHeight(t *testing.T) {
	heights := newFakeHeights()
	handler := newFakeTxHandler(6)
	ctx := context.Background()

	t1 := newTx(1)
	b100 := newBlock(100, t1)
	heights.set(b100, 100)
	handler.contexts[t1.TxHash()] = []string{"req-1"}

	watcher := NewTransactionConfirmationWatcher[string](handler, heights)
	_, err := watcher.Execute(ctx, b100, 100, domain.BlockAdded)
	require.NoError(t, err)

	for h := int32(101); h <= 103; h++ {
		b := newBlock(uint32(h))
		heights.set(b, h)
		_, err := watcher.Execute(ctx, b, h, domain.BlockAdded)
		require.NoError(t, err)
	}

	got := make([]int, len(handler.decisions))
	for i, d := range handler.decisions {
		got[i] = d.confirmation
	}
	assert.Equal(t, []int{1, 2, 3, 4}, got)
	assert.Empty(t, handler.removed)
}

func TestTransactionWatcher_CompletesAtRequiredDepth(t *testing.T) {
	heights := newFakeHeights()
	handler := newFakeTxHandler(6)
	ctx := context.Background()

	t1 := newTx(1)
	b100 := newBlock(100, t1)
	heights.set(b100, 100)
	handler.contexts[t1.TxHash()] = []string{"req-1"}

	watcher := NewTransactionConfirmationWatcher[string](handler, heights)
	_, err := watcher.Execute(ctx, b100, 100, domain.BlockAdded)
	require.NoError(t, err)
	watch := handler.watches[0]

	var removals []Removal[domain.TransactionWatch[string]]
	for h := int32(101); h <= 105; h++ {
		b := newBlock(uint32(h))
		heights.set(b, h)
		removals, err = watcher.Execute(ctx, b, h, domain.BlockAdded)
		require.NoError(t, err)
	}

	require.Len(t, removals, 1)
	assert.Equal(t, watch.ID, removals[0].Watch.ID)
	assert.Equal(t, domain.RemoveCompleted, removals[0].Reason)
	assert.Equal(t, domain.WatchStateCompleted, removals[0].State())

	require.Len(t, handler.removed, 1)
	assert.Equal(t, domain.RemoveCompleted, handler.removed[0].reason)
	assert.Empty(t, handler.watches)
}

func TestTransactionWatcher_AnchorBlockRemoved(t *testing.T) {
	heights := newFakeHeights()
	handler := newFakeTxHandler(6)
	ctx := context.Background()

	t1 := newTx(1)
	b100 := newBlock(100, t1)
	heights.set(b100, 100)
	handler.contexts[t1.TxHash()] = []string{"req-1"}

	watcher := NewTransactionConfirmationWatcher[string](handler, heights)
	_, err := watcher.Execute(ctx, b100, 100, domain.BlockAdded)
	require.NoError(t, err)
	createCalls := handler.createCalls

	removals, err := watcher.Execute(ctx, b100, 100, domain.BlockRemoving)
	require.NoError(t, err)

	require.Len(t, removals, 1)
	assert.Equal(t, domain.RemoveBlockRemoved, removals[0].Reason)
	assert.Equal(t, domain.WatchStateInvalidated, removals[0].State())
	assert.Equal(t, createCalls, handler.createCalls, "no watches are created on a removing event")

	last := handler.decisions[len(handler.decisions)-1]
	assert.Equal(t, domain.Unconfirming, last.ctype)
	assert.Equal(t, 1, last.confirmation)
}

func TestTransactionWatcher_AnchorBlockRemovedWhenAlreadyGone(t *testing.T) {
	heights := newFakeHeights()
	handler := newFakeTxHandler(6)

	b100 := newBlock(100)
	heights.set(b100, 100)

	watcher := NewTransactionConfirmationWatcher[string](handler, heights)
	removals, err := watcher.Execute(context.Background(), b100, 100, domain.BlockRemoving)

	require.NoError(t, err)
	assert.Empty(t, removals)
	assert.Empty(t, handler.decisions)
}

func TestTransactionWatcher_CompletedThenInvalidated(t *testing.T) {
	heights := newFakeHeights()
	handler := newFakeTxHandler(1)
	handler.decide = func(int, domain.ConfirmationType) bool { return true }

	b100 := newBlock(100)
	b100Hash := heights.set(b100, 100)
	handler.watches = []domain.TransactionWatch[string]{
		domain.NewTransactionWatch("req-1", b100Hash, newTx(1).TxHash()),
	}

	watcher := NewTransactionConfirmationWatcher[string](handler, heights)
	removals, err := watcher.Execute(context.Background(), b100, 100, domain.BlockRemoving)
	require.NoError(t, err)

	require.Len(t, removals, 1)
	assert.Equal(t, domain.RemoveCompleted|domain.RemoveBlockRemoved, removals[0].Reason)
	assert.Equal(t, domain.WatchStateCompletedThenInvalidated, removals[0].State())
}

func TestTransactionWatcher_RemovingDescendantKeepsWatch(t *testing.T) {
	heights := newFakeHeights()
	handler := newFakeTxHandler(6)

	b100 := newBlock(100)
	b100Hash := heights.set(b100, 100)
	b102 := newBlock(102)
	heights.set(b102, 102)
	handler.watches = []domain.TransactionWatch[string]{
		domain.NewTransactionWatch("req-1", b100Hash, newTx(1).TxHash()),
	}

	watcher := NewTransactionConfirmationWatcher[string](handler, heights)
	removals, err := watcher.Execute(context.Background(), b102, 102, domain.BlockRemoving)
	require.NoError(t, err)

	assert.Empty(t, removals)
	require.Len(t, handler.decisions, 1)
	assert.Equal(t, decision{confirmation: 3, ctype: domain.Unconfirming}, handler.decisions[0])
	assert.Len(t, handler.watches, 1)
}

func TestTransactionWatcher_EmptyActiveSetSkipsLookups(t *testing.T) {
	heights := newFakeHeights()
	handler := newFakeTxHandler(6)

	b := newBlock(1, newTx(1))
	heights.set(b, 1)

	watcher := NewTransactionConfirmationWatcher[string](handler, heights)
	removals, err := watcher.Execute(context.Background(), b, 1, domain.BlockAdded)

	require.NoError(t, err)
	assert.Empty(t, removals)
	assert.Zero(t, heights.calls)
	assert.Empty(t, handler.decisions)
}

func TestTransactionWatcher_OrderingViolation(t *testing.T) {
	heights := newFakeHeights()
	handler := newFakeTxHandler(6)

	b105 := newBlock(105)
	b105Hash := heights.set(b105, 105)
	b100 := newBlock(100)
	heights.set(b100, 100)
	handler.watches = []domain.TransactionWatch[string]{
		domain.NewTransactionWatch("req-1", b105Hash, newTx(1).TxHash()),
	}

	watcher := NewTransactionConfirmationWatcher[string](handler, heights)
	_, err := watcher.Execute(context.Background(), b100, 100, domain.BlockAdded)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnchorAboveHeight)
	assert.False(t, errors.Is(err, storage.ErrBlockNotFound))
	assert.Empty(t, handler.removed)
}

func TestTransactionWatcher_UnknownAnchorBlock(t *testing.T) {
	heights := newFakeHeights()
	handler := newFakeTxHandler(6)

	b100 := newBlock(100)
	heights.set(b100, 100)
	handler.watches = []domain.TransactionWatch[string]{
		domain.NewTransactionWatch("req-1", newBlock(7).BlockHash(), newTx(1).TxHash()),
	}

	watcher := NewTransactionConfirmationWatcher[string](handler, heights)
	_, err := watcher.Execute(context.Background(), b100, 100, domain.BlockAdded)

	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrBlockNotFound)
	assert.False(t, errors.Is(err, ErrAnchorAboveHeight))
}

func TestTransactionWatcher_UnknownEventType(t *testing.T) {
	heights := newFakeHeights()
	handler := newFakeTxHandler(6)

	t1 := newTx(1)
	b := newBlock(1, t1)
	handler.contexts[t1.TxHash()] = []string{"req-1"}

	watcher := NewTransactionConfirmationWatcher[string](handler, heights)
	_, err := watcher.Execute(context.Background(), b, 1, domain.BlockEventType(99))

	assert.ErrorIs(t, err, domain.ErrUnknownEventType)
	assert.Zero(t, handler.createCalls)
	assert.Empty(t, handler.watches)
}

func TestTransactionWatcher_NilBlock(t *testing.T) {
	watcher := NewTransactionConfirmationWatcher[string](newFakeTxHandler(1), newFakeHeights())

	_, err := watcher.Execute(context.Background(), nil, 1, domain.BlockAdded)
	assert.ErrorIs(t, err, ErrNilBlock)
}

func TestTransactionWatcher_CancelledEventStillPersistsCreatedWatches(t *testing.T) {
	heights := newFakeHeights()
	handler := newFakeTxHandler(1)

	t1 := newTx(1)
	b := newBlock(100, t1)
	heights.set(b, 100)
	handler.contexts[t1.TxHash()] = []string{"req-1"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	watcher := NewTransactionConfirmationWatcher[string](handler, heights)
	removals, err := watcher.Execute(ctx, b, 100, domain.BlockAdded)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, removals)
	assert.NoError(t, handler.addCtxErr, "batch persistence must not observe cancellation")
	assert.Len(t, handler.watches, 1)
	assert.Empty(t, handler.removed, "no removal after cancellation")
	assert.Empty(t, handler.decisions)
}

func TestTransactionWatcher_RemovalIgnoresCancellation(t *testing.T) {
	heights := newFakeHeights()
	handler := newFakeTxHandler(1)

	b := newBlock(100)
	bHash := heights.set(b, 100)
	handler.watches = []domain.TransactionWatch[string]{
		domain.NewTransactionWatch("req-1", bHash, newTx(1).TxHash()),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler.decide = func(int, domain.ConfirmationType) bool {
		return true
	}

	watcher := NewTransactionConfirmationWatcher[string](handler, heights)
	_, err := watcher.Execute(ctx, b, 100, domain.BlockAdded)

	require.NoError(t, err)
	require.Len(t, handler.removed, 1)
	assert.NoError(t, handler.removeCtxErr)
}

func TestTransactionWatcher_AddWatchesErrorPropagates(t *testing.T) {
	heights := newFakeHeights()
	handler := newFakeTxHandler(1)
	handler.addErr = errors.New("db down")

	t1 := newTx(1)
	b := newBlock(100, t1)
	heights.set(b, 100)
	handler.contexts[t1.TxHash()] = []string{"req-1"}

	watcher := NewTransactionConfirmationWatcher[string](handler, heights)
	_, err := watcher.Execute(context.Background(), b, 100, domain.BlockAdded)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Empty(t, handler.decisions)
}
