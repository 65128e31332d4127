package watching

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/vietddude/blockwatch/internal/core/domain"
)

// KindTransaction names transaction confirmation watches.
const KindTransaction = "transaction"

// TransactionHandler supplies the domain logic for transaction watches.
type TransactionHandler[C any] interface {
	Store[domain.TransactionWatch[C]]

	// CreateContexts returns one context per condition of interest found in
	// tx. It is called once for every transaction of an added block.
	CreateContexts(ctx context.Context, tx *wire.MsgTx) ([]C, error)

	// ConfirmationUpdate reports whether the watch is now final.
	ConfirmationUpdate(
		ctx context.Context,
		watch domain.TransactionWatch[C],
		confirmation int,
		confirmationType domain.ConfirmationType,
	) (bool, error)
}

type transactionStrategy[C any] struct {
	handler  TransactionHandler[C]
	executor *ConfirmationWatcher[domain.TransactionWatch[C]]
}

// NewTransactionConfirmationWatcher creates a watcher that follows single
// transactions until their handler considers them final.
func NewTransactionConfirmationWatcher[C any](
	handler TransactionHandler[C],
	heights BlockHeights,
	opts ...Option,
) *Watcher[domain.TransactionWatch[C]] {
	s := &transactionStrategy[C]{handler: handler}
	s.executor = NewConfirmationWatcher[domain.TransactionWatch[C]](KindTransaction, heights, transactionPolicy[C]{handler: handler})
	return New[domain.TransactionWatch[C]](KindTransaction, s, opts...)
}

func (s *transactionStrategy[C]) CreateWatches(ctx context.Context, block *wire.MsgBlock) ([]domain.TransactionWatch[C], error) {
	blockHash := block.BlockHash()

	var watches []domain.TransactionWatch[C]
	for _, tx := range block.Transactions {
		contexts, err := s.handler.CreateContexts(ctx, tx)
		if err != nil {
			return nil, fmt.Errorf("tx %s: %w", tx.TxHash(), err)
		}
		if len(contexts) == 0 {
			continue
		}
		txHash := tx.TxHash()
		for _, c := range contexts {
			watches = append(watches, domain.NewTransactionWatch(c, blockHash, txHash))
		}
	}
	return watches, nil
}

func (s *transactionStrategy[C]) ExecuteWatches(
	ctx context.Context,
	watches []domain.TransactionWatch[C],
	block *wire.MsgBlock,
	height int32,
	eventType domain.BlockEventType,
) ([]domain.TransactionWatch[C], error) {
	return s.executor.ExecuteWatches(ctx, watches, block, height, eventType)
}

func (s *transactionStrategy[C]) CurrentWatches(ctx context.Context) ([]domain.TransactionWatch[C], error) {
	return s.handler.CurrentWatches(ctx)
}

func (s *transactionStrategy[C]) AddWatches(ctx context.Context, watches []domain.TransactionWatch[C]) error {
	return s.handler.AddWatches(ctx, watches)
}

func (s *transactionStrategy[C]) RemoveWatch(
	ctx context.Context,
	watch domain.TransactionWatch[C],
	reason domain.RemoveReason,
) error {
	return s.handler.RemoveWatch(ctx, watch, reason)
}

// transactionPolicy never groups: every watch is decided on its own.
type transactionPolicy[C any] struct {
	handler TransactionHandler[C]
}

func (p transactionPolicy[C]) Group(watches []domain.TransactionWatch[C]) [][]domain.TransactionWatch[C] {
	groups := make([][]domain.TransactionWatch[C], len(watches))
	for i, w := range watches {
		groups[i] = []domain.TransactionWatch[C]{w}
	}
	return groups
}

func (p transactionPolicy[C]) Decide(
	ctx context.Context,
	group Group[domain.TransactionWatch[C]],
	confirmationType domain.ConfirmationType,
) (bool, error) {
	return p.handler.ConfirmationUpdate(ctx, group.Members[0], group.Effective, confirmationType)
}
