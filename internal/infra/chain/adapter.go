package chain

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Source is the boundary between the block synchronizer and a node.
type Source interface {
	// BestHeight returns the height of the node's best chain tip
	BestHeight(ctx context.Context) (int32, error)

	// BlockHash returns the hash of the block at height on the best chain
	BlockHash(ctx context.Context, height int32) (chainhash.Hash, error)

	// Block fetches a full block by hash
	Block(ctx context.Context, hash chainhash.Hash) (*wire.MsgBlock, error)
}
