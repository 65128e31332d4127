package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ErrUnknownEventType is returned for a BlockEventType outside the known set.
var ErrUnknownEventType = errors.New("unknown block event type")

// Block is a block known to be on the canonical chain. The header is kept so
// the block can be replayed to watchers when it is reorganized away.
type Block struct {
	Height     int32
	Hash       chainhash.Hash
	ParentHash chainhash.Hash
	Timestamp  time.Time
	Header     wire.BlockHeader
}

// BlockFromHeader builds a Block record for a header at the given height.
func BlockFromHeader(height int32, header *wire.BlockHeader) *Block {
	return &Block{
		Height:     height,
		Hash:       header.BlockHash(),
		ParentHash: header.PrevBlock,
		Timestamp:  header.Timestamp.UTC(),
		Header:     *header,
	}
}

// HeaderOnly returns a transaction-less message carrying the stored header.
func (b *Block) HeaderOnly() *wire.MsgBlock {
	header := b.Header
	return wire.NewMsgBlock(&header)
}

// BlockEventType is the kind of notification delivered by the block synchronizer.
type BlockEventType int

const (
	// BlockAdded means the block was appended to the canonical chain.
	BlockAdded BlockEventType = iota + 1
	// BlockRemoving means the block is about to be removed by a reorganization.
	BlockRemoving
)

func (t BlockEventType) String() string {
	switch t {
	case BlockAdded:
		return "added"
	case BlockRemoving:
		return "removing"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// ConfirmationType tells a handler in which direction the chain is moving.
type ConfirmationType int

const (
	// Confirmed is derived from a BlockAdded event.
	Confirmed ConfirmationType = iota + 1
	// Unconfirming is derived from a BlockRemoving event.
	Unconfirming
)

func (t ConfirmationType) String() string {
	switch t {
	case Confirmed:
		return "confirmed"
	case Unconfirming:
		return "unconfirming"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// ConfirmationTypeOf maps a block event to the confirmation type handlers see.
func ConfirmationTypeOf(eventType BlockEventType) (ConfirmationType, error) {
	switch eventType {
	case BlockAdded:
		return Confirmed, nil
	case BlockRemoving:
		return Unconfirming, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownEventType, int(eventType))
	}
}
