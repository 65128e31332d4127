package watching

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"

	"github.com/vietddude/blockwatch/internal/core/domain"
	"github.com/vietddude/blockwatch/internal/indexing/metrics"
)

// Anchored is implemented by every watch kind.
type Anchored interface {
	WatchID() uuid.UUID
	Anchor() chainhash.Hash
}

// Store is the persistence side of a watch kind.
type Store[W Anchored] interface {
	// CurrentWatches returns a snapshot of the active watches.
	CurrentWatches(ctx context.Context) ([]W, error)

	// AddWatches persists newly created watches as one batch.
	AddWatches(ctx context.Context, watches []W) error

	// RemoveWatch deletes a watch for the given non-empty reason.
	RemoveWatch(ctx context.Context, watch W, reason domain.RemoveReason) error
}

// Strategy plugs a watch kind into Watcher.
type Strategy[W Anchored] interface {
	Store[W]

	// CreateWatches returns the watches discovered in a newly added block.
	CreateWatches(ctx context.Context, block *wire.MsgBlock) ([]W, error)

	// ExecuteWatches returns the subset of watches that are now complete.
	ExecuteWatches(
		ctx context.Context,
		watches []W,
		block *wire.MsgBlock,
		height int32,
		eventType domain.BlockEventType,
	) ([]W, error)
}

// Removal is a storage mutation produced for one block event.
type Removal[W Anchored] struct {
	Watch  W
	Reason domain.RemoveReason
}

// State returns the terminal state the watch enters.
func (r Removal[W]) State() domain.WatchState {
	return domain.StateOf(r.Reason)
}

// Option configures a Watcher.
type Option func(*options)

type options struct {
	log *slog.Logger
}

// WithLogger sets the logger used by the watcher.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// Watcher is the reorg-aware driver shared by all watch kinds.
type Watcher[W Anchored] struct {
	kind     string
	strategy Strategy[W]
	log      *slog.Logger
}

// New creates a watcher for one watch kind.
func New[W Anchored](kind string, strategy Strategy[W], opts ...Option) *Watcher[W] {
	o := options{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Watcher[W]{
		kind:     kind,
		strategy: strategy,
		log:      o.log.With("kind", kind),
	}
}

// Kind returns the watch kind name.
func (w *Watcher[W]) Kind() string {
	return w.kind
}

// Execute processes one block event and returns the removals it applied.
//
// Watch creation, batch persistence and removals run detached from ctx
// cancellation so storage is never left with orphaned watches. Height lookups
// and decisions observe ctx; if it is cancelled before removals start, no
// removal is applied.
func (w *Watcher[W]) Execute(
	ctx context.Context,
	block *wire.MsgBlock,
	height int32,
	eventType domain.BlockEventType,
) (removals []Removal[W], err error) {
	if block == nil {
		return nil, ErrNilBlock
	}
	if _, err := domain.ConfirmationTypeOf(eventType); err != nil {
		return nil, err
	}

	start := time.Now()
	event := eventType.String()
	defer func() {
		metrics.BlockEventDuration.WithLabelValues(w.kind, event).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.BlockEventErrors.WithLabelValues(w.kind, event).Inc()
			return
		}
		metrics.BlockEventsProcessed.WithLabelValues(w.kind, event).Inc()
	}()

	blockHash := block.BlockHash()

	if eventType == domain.BlockAdded {
		if err := w.createWatches(context.WithoutCancel(ctx), block, blockHash); err != nil {
			return nil, err
		}
	}

	watches, err := w.strategy.CurrentWatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current %s watches: %w", w.kind, err)
	}
	if len(watches) == 0 {
		return nil, nil
	}

	completed, err := w.strategy.ExecuteWatches(ctx, watches, block, height, eventType)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s watches at block %s: %w", w.kind, blockHash, err)
	}

	removals, err = PlanRemovals(watches, completed, eventType, blockHash)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := w.applyRemovals(context.WithoutCancel(ctx), removals); err != nil {
		return nil, err
	}

	if len(removals) > 0 {
		w.log.Info("Removed watches",
			"block", blockHash,
			"height", height,
			"event", event,
			"active", len(watches),
			"removed", len(removals),
		)
	}
	return removals, nil
}

func (w *Watcher[W]) createWatches(ctx context.Context, block *wire.MsgBlock, blockHash chainhash.Hash) error {
	created, err := w.strategy.CreateWatches(ctx, block)
	if err != nil {
		return fmt.Errorf("failed to create %s watches for block %s: %w", w.kind, blockHash, err)
	}
	if len(created) == 0 {
		return nil
	}

	if err := w.strategy.AddWatches(ctx, created); err != nil {
		return fmt.Errorf("failed to add %d %s watches: %w", len(created), w.kind, err)
	}

	metrics.WatchesCreated.WithLabelValues(w.kind).Add(float64(len(created)))
	w.log.Info("Created watches", "block", blockHash, "count", len(created))
	return nil
}

func (w *Watcher[W]) applyRemovals(ctx context.Context, removals []Removal[W]) error {
	for _, r := range removals {
		if err := w.strategy.RemoveWatch(ctx, r.Watch, r.Reason); err != nil {
			return fmt.Errorf("failed to remove %s watch %s (%s): %w", w.kind, r.Watch.WatchID(), r.Reason, err)
		}
		metrics.WatchesRemoved.WithLabelValues(w.kind, r.Reason.String()).Inc()
		w.log.Debug("Removed watch", "watch", r.Watch.WatchID(), "reason", r.Reason, "state", r.State())
	}
	return nil
}

// PlanRemovals decides, for every active watch, whether it leaves storage.
//
// A completed watch gets RemoveCompleted. During BlockRemoving, a watch
// anchored at the removed block gets RemoveBlockRemoved regardless of the
// handler's decision. Watches with no reason are left out.
func PlanRemovals[W Anchored](
	active []W,
	completed []W,
	eventType domain.BlockEventType,
	blockHash chainhash.Hash,
) ([]Removal[W], error) {
	activeIDs := make(map[uuid.UUID]struct{}, len(active))
	for _, w := range active {
		activeIDs[w.WatchID()] = struct{}{}
	}

	done := make(map[uuid.UUID]struct{}, len(completed))
	for _, w := range completed {
		id := w.WatchID()
		if _, ok := done[id]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCompletion, id)
		}
		if _, ok := activeIDs[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCompletion, id)
		}
		done[id] = struct{}{}
	}

	var removals []Removal[W]
	for _, w := range active {
		reason := domain.RemoveNone
		if _, ok := done[w.WatchID()]; ok {
			reason |= domain.RemoveCompleted
		}
		if eventType == domain.BlockRemoving && w.Anchor() == blockHash {
			reason |= domain.RemoveBlockRemoved
		}
		if reason != domain.RemoveNone {
			removals = append(removals, Removal[W]{Watch: w, Reason: reason})
		}
	}
	return removals, nil
}
