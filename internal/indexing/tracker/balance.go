package tracker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/shopspring/decimal"

	"github.com/vietddude/blockwatch/internal/core/domain"
	"github.com/vietddude/blockwatch/internal/core/watching"
	"github.com/vietddude/blockwatch/internal/indexing/emitter"
	"github.com/vietddude/blockwatch/internal/indexing/filter"
	"github.com/vietddude/blockwatch/internal/infra/storage"
)

// AddressContext is the context of a balance watch: one output paying a
// watched address.
type AddressContext struct {
	Reference             string `json:"reference"`
	RequiredConfirmations int    `json:"required_confirmations"`
	OutputIndex           uint32 `json:"output_index"`
}

// BalanceWatch is the watch type handled by BalanceTracker.
type BalanceWatch = domain.BalanceWatch[AddressContext, decimal.Decimal]

// BalanceTracker watches incoming payments to wallet addresses. Amounts are
// credits in BTC.
type BalanceTracker struct {
	watches storage.WatchRepository[BalanceWatch]
	wallets storage.WalletRepository
	filter  filter.Filter
	params  *chaincfg.Params
	emitter emitter.Emitter
	log     *slog.Logger

	effectives *confirmations[string]
}

var (
	_ watching.BalanceHandler[AddressContext, decimal.Decimal] = (*BalanceTracker)(nil)
	_ blockListener                                            = (*BalanceTracker)(nil)
)

var balanceEvents = eventTypes{
	confirmed:   domain.EventTypeBalanceConfirmed,
	invalidated: domain.EventTypeBalanceInvalidated,
	retracted:   domain.EventTypeBalanceRetracted,
}

// NewBalanceTracker creates a tracker. Call Refresh before the first block.
func NewBalanceTracker(
	watches storage.WatchRepository[BalanceWatch],
	wallets storage.WalletRepository,
	params *chaincfg.Params,
	em emitter.Emitter,
	log *slog.Logger,
) *BalanceTracker {
	if log == nil {
		log = slog.Default()
	}
	t := &BalanceTracker{
		watches:    watches,
		wallets:    wallets,
		params:     params,
		emitter:    em,
		log:        log.With("tracker", watching.KindBalance),
		effectives: newConfirmations[string](),
	}
	t.filter = filter.NewMemoryFilter(walletAddresses(wallets))
	return t
}

func walletAddresses(wallets storage.WalletRepository) filter.Loader {
	return func(ctx context.Context) ([]string, error) {
		all, err := wallets.GetAll(ctx)
		if err != nil {
			return nil, err
		}
		addresses := make([]string, 0, len(all))
		for _, w := range all {
			addresses = append(addresses, w.Address)
		}
		return addresses, nil
	}
}

// Refresh reloads the watched addresses.
func (t *BalanceTracker) Refresh(ctx context.Context) error {
	return t.filter.Rebuild(ctx)
}

// Addresses returns the watched addresses.
func (t *BalanceTracker) Addresses() []string {
	return t.filter.Addresses()
}

// Watch registers wallets and starts matching their addresses immediately.
func (t *BalanceTracker) Watch(ctx context.Context, wallets ...*domain.WalletAddress) error {
	addresses := make([]string, 0, len(wallets))
	for _, w := range wallets {
		if err := t.wallets.Save(ctx, w); err != nil {
			return fmt.Errorf("failed to save wallet %s: %w", w.Address, err)
		}
		addresses = append(addresses, w.Address)
	}
	return t.filter.AddBatch(addresses)
}

// Unwatch stops matching addresses. Watches already created for them still
// run to completion.
func (t *BalanceTracker) Unwatch(ctx context.Context, addresses ...string) error {
	for _, address := range addresses {
		if err := t.wallets.Delete(ctx, address); err != nil {
			return fmt.Errorf("failed to delete wallet %s: %w", address, err)
		}
		if err := t.filter.Remove(address); err != nil {
			return err
		}
	}
	return nil
}

// OnBlock refreshes the watched addresses before an added block is scanned.
func (t *BalanceTracker) OnBlock(ctx context.Context, _ *wire.MsgBlock, _ int32, eventType domain.BlockEventType) error {
	if !refreshOn(eventType) {
		return nil
	}
	return t.Refresh(ctx)
}

// CreateChanges returns one change per output paying a watched address.
// Non-standard scripts are skipped.
func (t *BalanceTracker) CreateChanges(ctx context.Context, tx *wire.MsgTx) ([]domain.BalanceChange[AddressContext, decimal.Decimal], error) {
	if t.filter.Size() == 0 {
		return nil, nil
	}

	var changes []domain.BalanceChange[AddressContext, decimal.Decimal]
	for i, out := range tx.TxOut {
		_, addrs, _, err := txscript.ExtractPkScriptAddrs(out.PkScript, t.params)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			encoded := addr.EncodeAddress()
			if !t.filter.Contains(encoded) {
				continue
			}
			wallet, err := t.wallets.GetByAddress(ctx, encoded)
			if err != nil {
				return nil, fmt.Errorf("failed to load wallet %s: %w", encoded, err)
			}
			if wallet == nil {
				continue
			}

			required := wallet.RequiredConfirmations
			if required <= 0 {
				required = DefaultConfirmations
			}
			changes = append(changes, domain.BalanceChange[AddressContext, decimal.Decimal]{
				Context: AddressContext{
					Reference:             wallet.Reference,
					RequiredConfirmations: required,
					OutputIndex:           uint32(i),
				},
				Address: encoded,
				Amount:  decimal.New(out.Value, -8),
			})
		}
	}
	return changes, nil
}

// ConfirmationUpdate completes every change on the address once the least
// confirmed one reaches the deepest requirement among them.
func (t *BalanceTracker) ConfirmationUpdate(
	ctx context.Context,
	address string,
	changes []domain.ConfirmedBalanceChange[AddressContext, decimal.Decimal],
	confirmation int,
	confirmationType domain.ConfirmationType,
) (bool, error) {
	required := 0
	for _, c := range changes {
		if c.Context.RequiredConfirmations > required {
			required = c.Context.RequiredConfirmations
		}
	}
	t.effectives.set(address, confirmation)
	return confirmation >= required, nil
}

func (t *BalanceTracker) CurrentWatches(ctx context.Context) ([]BalanceWatch, error) {
	return t.watches.List(ctx)
}

// AddWatches skips outputs already watched from the same block.
func (t *BalanceTracker) AddWatches(ctx context.Context, watches []BalanceWatch) error {
	type key struct {
		tx, block chainhash.Hash
		index     uint32
	}

	current, err := t.watches.List(ctx)
	if err != nil {
		return err
	}
	seen := make(map[key]struct{}, len(current))
	for _, w := range current {
		seen[key{w.Transaction, w.StartBlock, w.Context.OutputIndex}] = struct{}{}
	}

	fresh := watches[:0:0]
	for _, w := range watches {
		k := key{w.Transaction, w.StartBlock, w.Context.OutputIndex}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		fresh = append(fresh, w)
	}
	if len(fresh) == 0 {
		return nil
	}
	return t.watches.AddBatch(ctx, fresh)
}

// RemoveWatch publishes the outcome, then deletes the watch.
func (t *BalanceTracker) RemoveWatch(ctx context.Context, watch BalanceWatch, reason domain.RemoveReason) error {
	eventType, ok := balanceEvents.of(reason)
	if !ok {
		return fmt.Errorf("invalid remove reason %s for watch %s", reason, watch.ID)
	}

	sats := watch.BalanceChange.Shift(8).IntPart()
	event := newEvent(eventType, watch.ID, watch.Context.Reference, watch.StartBlock)
	event.TxHash = watch.Transaction.String()
	event.Address = watch.Address
	event.Confirmation = t.effectives.get(watch.Address)
	event.Metadata = map[string]any{
		"amount":       watch.BalanceChange.String(),
		"amount_sat":   sats,
		"output_index": watch.Context.OutputIndex,
	}
	if err := t.emitter.Emit(ctx, event); err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}

	if err := t.watches.Remove(ctx, watch.ID); err != nil {
		return err
	}
	if err := t.forgetIfIdle(ctx, watch.Address); err != nil {
		return err
	}

	t.log.Info("Balance watch closed",
		"address", watch.Address,
		"tx", watch.Transaction,
		"amount", btcutil.Amount(sats),
		"event", eventType,
	)
	return nil
}

// forgetIfIdle drops the recorded depth of an address with no watches left.
func (t *BalanceTracker) forgetIfIdle(ctx context.Context, address string) error {
	remaining, err := t.watches.List(ctx)
	if err != nil {
		return err
	}
	for _, w := range remaining {
		if w.Address == address {
			return nil
		}
	}
	t.effectives.take(address)
	return nil
}
