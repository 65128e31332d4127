package domain

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// TrackedTransaction is a request to be notified once a transaction is final.
type TrackedTransaction struct {
	TxHash                chainhash.Hash
	Reference             string
	RequiredConfirmations int
	CreatedAt             time.Time
}
