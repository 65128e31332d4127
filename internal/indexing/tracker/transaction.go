package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"

	"github.com/vietddude/blockwatch/internal/core/domain"
	"github.com/vietddude/blockwatch/internal/core/watching"
	"github.com/vietddude/blockwatch/internal/indexing/emitter"
	"github.com/vietddude/blockwatch/internal/infra/storage"
)

// TxRequest is the context of a transaction watch.
type TxRequest struct {
	Reference             string `json:"reference"`
	RequiredConfirmations int    `json:"required_confirmations"`
}

// TransactionWatch is the watch type handled by TransactionTracker.
type TransactionWatch = domain.TransactionWatch[TxRequest]

// TransactionTracker watches transactions registered in a
// TrackedTransactionRepository until they reach their required depth.
type TransactionTracker struct {
	watches storage.WatchRepository[TransactionWatch]
	tracked storage.TrackedTransactionRepository
	emitter emitter.Emitter
	log     *slog.Logger

	mu       sync.RWMutex
	requests map[chainhash.Hash]*domain.TrackedTransaction

	depth *confirmations[uuid.UUID]
}

var (
	_ watching.TransactionHandler[TxRequest] = (*TransactionTracker)(nil)
	_ blockListener                          = (*TransactionTracker)(nil)
)

var txEvents = eventTypes{
	confirmed:   domain.EventTypeTransactionConfirmed,
	invalidated: domain.EventTypeTransactionInvalidated,
	retracted:   domain.EventTypeTransactionRetracted,
}

// NewTransactionTracker creates a tracker. Call Refresh before the first block.
func NewTransactionTracker(
	watches storage.WatchRepository[TransactionWatch],
	tracked storage.TrackedTransactionRepository,
	em emitter.Emitter,
	log *slog.Logger,
) *TransactionTracker {
	if log == nil {
		log = slog.Default()
	}
	return &TransactionTracker{
		watches:  watches,
		tracked:  tracked,
		emitter:  em,
		log:      log.With("tracker", watching.KindTransaction),
		requests: make(map[chainhash.Hash]*domain.TrackedTransaction),
		depth:    newConfirmations[uuid.UUID](),
	}
}

// Refresh reloads the registered transactions.
func (t *TransactionTracker) Refresh(ctx context.Context) error {
	all, err := t.tracked.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tracked transactions: %w", err)
	}
	requests := make(map[chainhash.Hash]*domain.TrackedTransaction, len(all))
	for _, r := range all {
		requests[r.TxHash] = r
	}

	t.mu.Lock()
	t.requests = requests
	t.mu.Unlock()
	return nil
}

// OnBlock refreshes the registered transactions before an added block is
// scanned.
func (t *TransactionTracker) OnBlock(ctx context.Context, _ *wire.MsgBlock, _ int32, eventType domain.BlockEventType) error {
	if !refreshOn(eventType) {
		return nil
	}
	return t.Refresh(ctx)
}

func (t *TransactionTracker) CreateContexts(ctx context.Context, tx *wire.MsgTx) ([]TxRequest, error) {
	t.mu.RLock()
	r, ok := t.requests[tx.TxHash()]
	t.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	required := r.RequiredConfirmations
	if required <= 0 {
		required = DefaultConfirmations
	}
	return []TxRequest{{Reference: r.Reference, RequiredConfirmations: required}}, nil
}

// ConfirmationUpdate completes the watch once it has the required depth. The
// update type is not consulted, so a watch completes on the first update at or
// above that depth, usually the added block that reaches it. A removing event
// for the anchor block itself is observed at depth 1, which means
// transaction_retracted is only published for watches requiring a single
// confirmation.
func (t *TransactionTracker) ConfirmationUpdate(
	ctx context.Context,
	watch TransactionWatch,
	confirmation int,
	confirmationType domain.ConfirmationType,
) (bool, error) {
	t.depth.set(watch.ID, confirmation)
	return confirmation >= watch.Context.RequiredConfirmations, nil
}

func (t *TransactionTracker) CurrentWatches(ctx context.Context) ([]TransactionWatch, error) {
	return t.watches.List(ctx)
}

// AddWatches skips watches already stored for the same transaction and
// block, which happens when an added block is delivered again.
func (t *TransactionTracker) AddWatches(ctx context.Context, watches []TransactionWatch) error {
	type key struct{ tx, block chainhash.Hash }

	current, err := t.watches.List(ctx)
	if err != nil {
		return err
	}
	seen := make(map[key]struct{}, len(current))
	for _, w := range current {
		seen[key{w.TransactionID, w.StartBlock}] = struct{}{}
	}

	fresh := watches[:0:0]
	for _, w := range watches {
		if _, ok := seen[key{w.TransactionID, w.StartBlock}]; ok {
			continue
		}
		fresh = append(fresh, w)
	}
	if len(fresh) == 0 {
		return nil
	}
	return t.watches.AddBatch(ctx, fresh)
}

// RemoveWatch publishes the outcome, then deletes the watch. A completed
// request is deleted too; an invalidated one stays registered so a
// re-mined transaction is watched again.
func (t *TransactionTracker) RemoveWatch(ctx context.Context, watch TransactionWatch, reason domain.RemoveReason) error {
	eventType, ok := txEvents.of(reason)
	if !ok {
		return fmt.Errorf("invalid remove reason %s for watch %s", reason, watch.ID)
	}

	event := newEvent(eventType, watch.ID, watch.Context.Reference, watch.StartBlock)
	event.TxHash = watch.TransactionID.String()
	event.Confirmation = t.depth.get(watch.ID)
	if err := t.emitter.Emit(ctx, event); err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}

	if err := t.watches.Remove(ctx, watch.ID); err != nil {
		return err
	}
	t.depth.take(watch.ID)

	if reason == domain.RemoveCompleted {
		if err := t.tracked.Delete(ctx, watch.TransactionID); err != nil {
			return fmt.Errorf("failed to delete tracked transaction %s: %w", watch.TransactionID, err)
		}
		t.mu.Lock()
		delete(t.requests, watch.TransactionID)
		t.mu.Unlock()
	}

	t.log.Info("Transaction watch closed",
		"tx", watch.TransactionID,
		"reference", watch.Context.Reference,
		"event", eventType,
		"confirmation", event.Confirmation,
	)
	return nil
}
