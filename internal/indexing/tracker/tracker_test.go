package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/blockwatch/internal/core/domain"
	"github.com/vietddude/blockwatch/internal/infra/storage/memory"
)

// recordingEmitter keeps every published event.
type recordingEmitter struct {
	mu     sync.Mutex
	events []*domain.Event
	err    error
}

func (e *recordingEmitter) Emit(ctx context.Context, event *domain.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, event)
	return nil
}

func (e *recordingEmitter) Close() error { return nil }

func (e *recordingEmitter) types() []domain.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.EventType, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.EventType
	}
	return out
}

var errBroker = errors.New("broker unavailable")

// chain stores blocks in a memory block repository so watchers can resolve
// heights.
type chain struct {
	t      *testing.T
	store  *memory.MemoryStorage
	blocks *memory.BlockRepo
}

func newChain(t *testing.T) *chain {
	store := memory.NewMemoryStorage()
	return &chain{t: t, store: store, blocks: memory.NewBlockRepo(store)}
}

// add stores a block at height containing txs. nonce keeps forks apart.
func (c *chain) add(height int32, nonce uint32, txs ...*wire.MsgTx) *wire.MsgBlock {
	c.t.Helper()
	block := wire.NewMsgBlock(wire.NewBlockHeader(1, &chainhash.Hash{}, &chainhash.Hash{}, 0, uint32(height)*100+nonce))
	for _, tx := range txs {
		require.NoError(c.t, block.AddTransaction(tx))
	}
	require.NoError(c.t, c.blocks.Save(context.Background(), domain.BlockFromHeader(height, &block.Header)))
	return block
}

func newTx(marker byte) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{marker}}, nil, nil))
	return tx
}

// p2pkh returns a regtest address derived from seed and its output script.
func p2pkh(t *testing.T, seed byte) (string, []byte) {
	t.Helper()
	hash := make([]byte, 20)
	for i := range hash {
		hash[i] = seed
	}
	addr, err := btcutil.NewAddressPubKeyHash(hash, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return addr.EncodeAddress(), script
}

func registerTx(t *testing.T, store *memory.MemoryStorage, tx *wire.MsgTx, reference string, required int) {
	t.Helper()
	err := memory.NewTrackedTxRepo(store).Save(context.Background(), &domain.TrackedTransaction{
		TxHash:                tx.TxHash(),
		Reference:             reference,
		RequiredConfirmations: required,
		CreatedAt:             time.Now(),
	})
	require.NoError(t, err)
}

func registerWallet(t *testing.T, store *memory.MemoryStorage, address, reference string, required int) {
	t.Helper()
	err := memory.NewWalletRepo(store).Save(context.Background(), &domain.WalletAddress{
		Address:               address,
		Reference:             reference,
		RequiredConfirmations: required,
		CreatedAt:             time.Now(),
	})
	require.NoError(t, err)
}
