package watching

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/vietddude/blockwatch/internal/core/domain"
)

// KindBalance names balance watches.
const KindBalance = "balance"

// BalanceHandler supplies the domain logic for balance watches.
type BalanceHandler[C, A any] interface {
	Store[domain.BalanceWatch[C, A]]

	// CreateChanges returns the balance changes tx causes on addresses of
	// interest. It is called once for every transaction of an added block.
	CreateChanges(ctx context.Context, tx *wire.MsgTx) ([]domain.BalanceChange[C, A], error)

	// ConfirmationUpdate reports whether every change on address is final.
	// confirmation is the smallest confirmation among changes.
	ConfirmationUpdate(
		ctx context.Context,
		address string,
		changes []domain.ConfirmedBalanceChange[C, A],
		confirmation int,
		confirmationType domain.ConfirmationType,
	) (bool, error)
}

type balanceStrategy[C, A any] struct {
	handler  BalanceHandler[C, A]
	executor *ConfirmationWatcher[domain.BalanceWatch[C, A]]
}

// NewBalanceWatcher creates a watcher that confirms balance changes per
// address.
func NewBalanceWatcher[C, A any](
	handler BalanceHandler[C, A],
	heights BlockHeights,
	opts ...Option,
) *Watcher[domain.BalanceWatch[C, A]] {
	s := &balanceStrategy[C, A]{handler: handler}
	s.executor = NewConfirmationWatcher[domain.BalanceWatch[C, A]](KindBalance, heights, balancePolicy[C, A]{handler: handler})
	return New[domain.BalanceWatch[C, A]](KindBalance, s, opts...)
}

func (s *balanceStrategy[C, A]) CreateWatches(ctx context.Context, block *wire.MsgBlock) ([]domain.BalanceWatch[C, A], error) {
	blockHash := block.BlockHash()

	var watches []domain.BalanceWatch[C, A]
	for _, tx := range block.Transactions {
		changes, err := s.handler.CreateChanges(ctx, tx)
		if err != nil {
			return nil, fmt.Errorf("tx %s: %w", tx.TxHash(), err)
		}
		if len(changes) == 0 {
			continue
		}
		txHash := tx.TxHash()
		for _, change := range changes {
			watches = append(watches, domain.NewBalanceWatch(change, blockHash, txHash))
		}
	}
	return watches, nil
}

func (s *balanceStrategy[C, A]) ExecuteWatches(
	ctx context.Context,
	watches []domain.BalanceWatch[C, A],
	block *wire.MsgBlock,
	height int32,
	eventType domain.BlockEventType,
) ([]domain.BalanceWatch[C, A], error) {
	return s.executor.ExecuteWatches(ctx, watches, block, height, eventType)
}

func (s *balanceStrategy[C, A]) CurrentWatches(ctx context.Context) ([]domain.BalanceWatch[C, A], error) {
	return s.handler.CurrentWatches(ctx)
}

func (s *balanceStrategy[C, A]) AddWatches(ctx context.Context, watches []domain.BalanceWatch[C, A]) error {
	return s.handler.AddWatches(ctx, watches)
}

func (s *balanceStrategy[C, A]) RemoveWatch(
	ctx context.Context,
	watch domain.BalanceWatch[C, A],
	reason domain.RemoveReason,
) error {
	return s.handler.RemoveWatch(ctx, watch, reason)
}

// balancePolicy groups watches by address, in order of first appearance.
type balancePolicy[C, A any] struct {
	handler BalanceHandler[C, A]
}

func (p balancePolicy[C, A]) Group(watches []domain.BalanceWatch[C, A]) [][]domain.BalanceWatch[C, A] {
	index := make(map[string]int)
	var groups [][]domain.BalanceWatch[C, A]
	for _, w := range watches {
		i, ok := index[w.Address]
		if !ok {
			i = len(groups)
			index[w.Address] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], w)
	}
	return groups
}

func (p balancePolicy[C, A]) Decide(
	ctx context.Context,
	group Group[domain.BalanceWatch[C, A]],
	confirmationType domain.ConfirmationType,
) (bool, error) {
	changes := make([]domain.ConfirmedBalanceChange[C, A], len(group.Members))
	for i, w := range group.Members {
		changes[i] = domain.NewConfirmedBalanceChange(w.Context, w.BalanceChange, group.Confirmations[i])
	}
	return p.handler.ConfirmationUpdate(ctx, group.Members[0].Address, changes, group.Effective, confirmationType)
}
