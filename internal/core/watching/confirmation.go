package watching

import (
	"context"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"

	"github.com/vietddude/blockwatch/internal/core/domain"
	"github.com/vietddude/blockwatch/internal/indexing/metrics"
)

// BlockHeights resolves a block hash to its height on the canonical chain.
// Unknown hashes must produce an error wrapping storage.ErrBlockNotFound.
type BlockHeights interface {
	BlockHeight(ctx context.Context, hash chainhash.Hash) (int32, error)
}

// Confirmation returns how many blocks, inclusive of the anchor, separate
// anchor from height.
func Confirmation(ctx context.Context, heights BlockHeights, anchor chainhash.Hash, height int32) (int, error) {
	start, err := heights.BlockHeight(ctx, anchor)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve height of block %s: %w", anchor, err)
	}
	if start > height {
		return 0, fmt.Errorf("%w: block %s is at %d, event is at %d", ErrAnchorAboveHeight, anchor, start, height)
	}
	return int(height-start) + 1, nil
}

// Group is a set of watches confirmed together.
type Group[W Anchored] struct {
	Members []W
	// Confirmations holds one entry per member, in the same order.
	Confirmations []int
	// Effective is the smallest member confirmation.
	Effective int
}

// ConfirmationPolicy is the per-kind part of a ConfirmationWatcher.
type ConfirmationPolicy[W Anchored] interface {
	// Group partitions the active watches. Each watch should appear in
	// exactly one group.
	Group(watches []W) [][]W

	// Decide reports whether every member of the group is now final.
	Decide(ctx context.Context, group Group[W], confirmationType domain.ConfirmationType) (bool, error)
}

// ConfirmationWatcher decides completion from confirmation depth.
type ConfirmationWatcher[W Anchored] struct {
	kind    string
	heights BlockHeights
	policy  ConfirmationPolicy[W]
}

// NewConfirmationWatcher creates a confirmation-based executor.
func NewConfirmationWatcher[W Anchored](kind string, heights BlockHeights, policy ConfirmationPolicy[W]) *ConfirmationWatcher[W] {
	return &ConfirmationWatcher[W]{
		kind:    kind,
		heights: heights,
		policy:  policy,
	}
}

// ExecuteWatches computes confirmations for every group, asks the policy for
// a decision and returns the members of accepted groups.
func (c *ConfirmationWatcher[W]) ExecuteWatches(
	ctx context.Context,
	watches []W,
	_ *wire.MsgBlock,
	height int32,
	eventType domain.BlockEventType,
) ([]W, error) {
	confirmationType, err := domain.ConfirmationTypeOf(eventType)
	if err != nil {
		return nil, err
	}

	var completed []W
	seen := make(map[uuid.UUID]struct{}, len(watches))

	for _, members := range c.policy.Group(watches) {
		if len(members) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		group, err := c.confirm(ctx, members, height)
		if err != nil {
			return nil, err
		}

		ok, err := c.policy.Decide(ctx, group, confirmationType)
		if err != nil {
			return nil, fmt.Errorf("failed to decide on %d watches: %w", len(members), err)
		}
		metrics.ConfirmationDecisions.WithLabelValues(c.kind, confirmationType.String(), strconv.FormatBool(ok)).Inc()
		if !ok {
			continue
		}

		for _, m := range members {
			id := m.WatchID()
			if _, dup := seen[id]; dup {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateCompletion, id)
			}
			seen[id] = struct{}{}
			completed = append(completed, m)
		}
	}

	return completed, nil
}

func (c *ConfirmationWatcher[W]) confirm(ctx context.Context, members []W, height int32) (Group[W], error) {
	group := Group[W]{
		Members:       members,
		Confirmations: make([]int, len(members)),
	}
	for i, m := range members {
		confirmation, err := Confirmation(ctx, c.heights, m.Anchor(), height)
		if err != nil {
			return Group[W]{}, fmt.Errorf("watch %s: %w", m.WatchID(), err)
		}
		group.Confirmations[i] = confirmation
		if i == 0 || confirmation < group.Effective {
			group.Effective = confirmation
		}
	}
	return group, nil
}
