// Package tracker holds the watch handlers that turn registered
// transactions and wallet addresses into confirmation events.
//
// Both trackers keep an in-memory snapshot of their subscriptions. Register
// them as pipeline listeners ahead of their watchers: OnBlock refreshes the
// snapshot before the watcher scans an added block.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"

	"github.com/vietddude/blockwatch/internal/core/domain"
)

// DefaultConfirmations is used when a subscription does not set its own depth.
const DefaultConfirmations = 6

// confirmations remembers the last depth decided for each watch so removal
// events can report it.
type confirmations[K comparable] struct {
	mu   sync.Mutex
	last map[K]int
}

func newConfirmations[K comparable]() *confirmations[K] {
	return &confirmations[K]{last: make(map[K]int)}
}

func (c *confirmations[K]) set(key K, n int) {
	c.mu.Lock()
	c.last[key] = n
	c.mu.Unlock()
}

func (c *confirmations[K]) take(key K) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.last[key]
	delete(c.last, key)
	return n
}

func (c *confirmations[K]) get(key K) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last[key]
}

// eventTypes maps a removal state to the event published for it.
type eventTypes struct {
	confirmed, invalidated, retracted domain.EventType
}

func (t eventTypes) of(reason domain.RemoveReason) (domain.EventType, bool) {
	switch domain.StateOf(reason) {
	case domain.WatchStateCompleted:
		return t.confirmed, true
	case domain.WatchStateInvalidated:
		return t.invalidated, true
	case domain.WatchStateCompletedThenInvalidated:
		return t.retracted, true
	default:
		return "", false
	}
}

func newEvent(eventType domain.EventType, id uuid.UUID, reference string, anchor chainhash.Hash) *domain.Event {
	return &domain.Event{
		EventType: eventType,
		WatchID:   id.String(),
		Reference: reference,
		BlockHash: anchor.String(),
		EmittedAt: time.Now().UTC(),
	}
}

// refreshOn reports whether a block event should refresh subscriptions.
func refreshOn(eventType domain.BlockEventType) bool {
	return eventType == domain.BlockAdded
}

// blockListener is the pipeline listener shape, repeated here to keep the
// tracker package free of the indexer.
type blockListener interface {
	OnBlock(ctx context.Context, block *wire.MsgBlock, height int32, eventType domain.BlockEventType) error
}
