package domain

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"
)

// Watch is the header shared by every watch kind: a pending observation
// anchored to the block in which it was first seen.
//
// StartBlock never changes after construction. Confirmation depth is not
// stored; it is recomputed from StartBlock on every block event.
type Watch[C any] struct {
	ID         uuid.UUID
	Context    C
	StartBlock chainhash.Hash
	StartTime  time.Time
}

// NewWatch creates a watch anchored at startBlock with a fresh identifier.
func NewWatch[C any](context C, startBlock chainhash.Hash) Watch[C] {
	return Watch[C]{
		ID:         uuid.New(),
		Context:    context,
		StartBlock: startBlock,
		StartTime:  time.Now().UTC(),
	}
}

// WatchID returns the watch identity.
func (w Watch[C]) WatchID() uuid.UUID { return w.ID }

// Anchor returns the block the watch depends on.
func (w Watch[C]) Anchor() chainhash.Hash { return w.StartBlock }

// TransactionWatch waits for a single transaction to reach finality.
type TransactionWatch[C any] struct {
	Watch[C]
	TransactionID chainhash.Hash
}

// NewTransactionWatch creates a watch for tx, anchored at startBlock.
func NewTransactionWatch[C any](context C, startBlock, tx chainhash.Hash) TransactionWatch[C] {
	return TransactionWatch[C]{
		Watch:         NewWatch(context, startBlock),
		TransactionID: tx,
	}
}

func (w TransactionWatch[C]) String() string {
	return fmt.Sprintf("tx-watch(%s tx=%s block=%s)", w.ID, w.TransactionID, w.StartBlock)
}

// BalanceWatch tracks one balance-affecting change on an address. Several
// watches may share an address; they are confirmed together.
type BalanceWatch[C, A any] struct {
	Watch[C]
	Transaction   chainhash.Hash
	Address       string
	BalanceChange A
}

// NewBalanceWatch creates a watch for change, anchored at startBlock.
func NewBalanceWatch[C, A any](change BalanceChange[C, A], startBlock, tx chainhash.Hash) BalanceWatch[C, A] {
	return BalanceWatch[C, A]{
		Watch:         NewWatch(change.Context, startBlock),
		Transaction:   tx,
		Address:       change.Address,
		BalanceChange: change.Amount,
	}
}

func (w BalanceWatch[C, A]) String() string {
	return fmt.Sprintf("balance-watch(%s address=%s tx=%s block=%s)", w.ID, w.Address, w.Transaction, w.StartBlock)
}

// BalanceChange is a balance-affecting condition discovered in a transaction.
type BalanceChange[C, A any] struct {
	Context C
	Address string
	Amount  A
}

// ConfirmedBalanceChange is a balance change together with its current
// confirmation depth, handed to balance handlers.
type ConfirmedBalanceChange[C, A any] struct {
	Context      C
	Amount       A
	Confirmation int
}

// NewConfirmedBalanceChange panics when confirmation is below 1; a watch
// observed at its own block already has one confirmation.
func NewConfirmedBalanceChange[C, A any](context C, amount A, confirmation int) ConfirmedBalanceChange[C, A] {
	if confirmation < 1 {
		panic(fmt.Sprintf("confirmation must be at least 1, got %d", confirmation))
	}
	return ConfirmedBalanceChange[C, A]{
		Context:      context,
		Amount:       amount,
		Confirmation: confirmation,
	}
}
