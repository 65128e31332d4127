package watching

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/vietddude/blockwatch/internal/core/domain"
	"github.com/vietddude/blockwatch/internal/infra/storage"
)

// =============================================================================
// Helpers shared by the watching tests
// =============================================================================

func newTx(marker byte) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(int64(marker)+1, []byte{marker}))
	return tx
}

func newBlock(nonce uint32, txs ...*wire.MsgTx) *wire.MsgBlock {
	block := wire.NewMsgBlock(wire.NewBlockHeader(1, &chainhash.Hash{}, &chainhash.Hash{}, 0, nonce))
	for _, tx := range txs {
		_ = block.AddTransaction(tx)
	}
	return block
}

type fakeHeights struct {
	mu      sync.Mutex
	heights map[chainhash.Hash]int32
	calls   int
}

func newFakeHeights() *fakeHeights {
	return &fakeHeights{heights: make(map[chainhash.Hash]int32)}
}

func (f *fakeHeights) set(block *wire.MsgBlock, height int32) chainhash.Hash {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash := block.BlockHash()
	f.heights[hash] = height
	return hash
}

func (f *fakeHeights) BlockHeight(ctx context.Context, hash chainhash.Hash) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	h, ok := f.heights[hash]
	if !ok {
		return 0, fmt.Errorf("%w: %s", storage.ErrBlockNotFound, hash)
	}
	return h, nil
}

type decision struct {
	confirmation int
	ctype        domain.ConfirmationType
}

type removed[W any] struct {
	watch  W
	reason domain.RemoveReason
}

// fakeTxHandler keeps watches in memory and completes a watch once it has
// `required` confirmations on a Confirmed event.
type fakeTxHandler struct {
	contexts map[chainhash.Hash][]string
	required int
	decide   func(confirmation int, ct domain.ConfirmationType) bool

	watches      []domain.TransactionWatch[string]
	batches      [][]domain.TransactionWatch[string]
	removed      []removed[domain.TransactionWatch[string]]
	decisions    []decision
	createCalls  int
	addCtxErr    error
	removeCtxErr error
	addErr       error
}

func newFakeTxHandler(required int) *fakeTxHandler {
	return &fakeTxHandler{
		contexts: make(map[chainhash.Hash][]string),
		required: required,
	}
}

func (h *fakeTxHandler) CreateContexts(ctx context.Context, tx *wire.MsgTx) ([]string, error) {
	h.createCalls++
	return h.contexts[tx.TxHash()], nil
}

func (h *fakeTxHandler) ConfirmationUpdate(
	ctx context.Context,
	watch domain.TransactionWatch[string],
	confirmation int,
	ct domain.ConfirmationType,
) (bool, error) {
	h.decisions = append(h.decisions, decision{confirmation: confirmation, ctype: ct})
	if h.decide != nil {
		return h.decide(confirmation, ct), nil
	}
	return ct == domain.Confirmed && confirmation >= h.required, nil
}

func (h *fakeTxHandler) CurrentWatches(ctx context.Context) ([]domain.TransactionWatch[string], error) {
	out := make([]domain.TransactionWatch[string], len(h.watches))
	copy(out, h.watches)
	return out, nil
}

func (h *fakeTxHandler) AddWatches(ctx context.Context, watches []domain.TransactionWatch[string]) error {
	h.addCtxErr = ctx.Err()
	if h.addErr != nil {
		return h.addErr
	}
	h.batches = append(h.batches, watches)
	h.watches = append(h.watches, watches...)
	return nil
}

func (h *fakeTxHandler) RemoveWatch(
	ctx context.Context,
	watch domain.TransactionWatch[string],
	reason domain.RemoveReason,
) error {
	h.removeCtxErr = ctx.Err()
	h.removed = append(h.removed, removed[domain.TransactionWatch[string]]{watch: watch, reason: reason})
	for i, w := range h.watches {
		if w.ID == watch.ID {
			h.watches = append(h.watches[:i], h.watches[i+1:]...)
			break
		}
	}
	return nil
}

type balanceDecision struct {
	address      string
	changes      []domain.ConfirmedBalanceChange[string, int64]
	confirmation int
	ctype        domain.ConfirmationType
}

type fakeBalanceHandler struct {
	changes  map[chainhash.Hash][]domain.BalanceChange[string, int64]
	required int

	watches   []domain.BalanceWatch[string, int64]
	removed   []removed[domain.BalanceWatch[string, int64]]
	decisions []balanceDecision
}

func newFakeBalanceHandler(required int) *fakeBalanceHandler {
	return &fakeBalanceHandler{
		changes:  make(map[chainhash.Hash][]domain.BalanceChange[string, int64]),
		required: required,
	}
}

func (h *fakeBalanceHandler) CreateChanges(ctx context.Context, tx *wire.MsgTx) ([]domain.BalanceChange[string, int64], error) {
	return h.changes[tx.TxHash()], nil
}

func (h *fakeBalanceHandler) ConfirmationUpdate(
	ctx context.Context,
	address string,
	changes []domain.ConfirmedBalanceChange[string, int64],
	confirmation int,
	ct domain.ConfirmationType,
) (bool, error) {
	h.decisions = append(h.decisions, balanceDecision{
		address:      address,
		changes:      changes,
		confirmation: confirmation,
		ctype:        ct,
	})
	return ct == domain.Confirmed && confirmation >= h.required, nil
}

func (h *fakeBalanceHandler) CurrentWatches(ctx context.Context) ([]domain.BalanceWatch[string, int64], error) {
	out := make([]domain.BalanceWatch[string, int64], len(h.watches))
	copy(out, h.watches)
	return out, nil
}

func (h *fakeBalanceHandler) AddWatches(ctx context.Context, watches []domain.BalanceWatch[string, int64]) error {
	h.watches = append(h.watches, watches...)
	return nil
}

func (h *fakeBalanceHandler) RemoveWatch(
	ctx context.Context,
	watch domain.BalanceWatch[string, int64],
	reason domain.RemoveReason,
) error {
	h.removed = append(h.removed, removed[domain.BalanceWatch[string, int64]]{watch: watch, reason: reason})
	for i, w := range h.watches {
		if w.ID == watch.ID {
			h.watches = append(h.watches[:i], h.watches[i+1:]...)
			break
		}
	}
	return nil
}
