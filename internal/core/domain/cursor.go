package domain

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Cursor represents the delivery position of the block synchronizer: the
// last block event handed to listeners and the first listener still owed it.
type Cursor struct {
	Name         string
	BlockHash    chainhash.Hash
	Height       int32
	EventType    BlockEventType
	NextListener int
	State        CursorState
	UpdatedAt    time.Time
}

type CursorState string

const (
	// CursorStateDelivering means some listeners have not accepted the event.
	CursorStateDelivering CursorState = "delivering"
	// CursorStateDelivered means every listener accepted the event.
	CursorStateDelivered CursorState = "delivered"
)

// Is reports whether the cursor points at the given event.
func (c *Cursor) Is(hash chainhash.Hash, eventType BlockEventType) bool {
	return c != nil && c.BlockHash == hash && c.EventType == eventType
}
