// Package watching drives reorg-aware confirmation watches over a stream of
// block events.
//
// # Event Flow
//
// The block synchronizer calls Watcher.Execute once per event, strictly in
// chain order and never concurrently:
//
//  1. On BlockAdded, the strategy creates watches for the block's transactions
//     and they are persisted as one batch.
//  2. The active watch set is loaded. An empty set ends the event.
//  3. The strategy decides which watches are now complete.
//  4. PlanRemovals assigns every active watch a RemoveReason and the non-empty
//     ones are handed to the storage hook.
//
// # Confirmation Watches
//
// ConfirmationWatcher resolves each watch's anchor block through BlockHeights
// and computes
//
//	confirmation = currentHeight - anchorHeight + 1
//
// Watches are grouped by a ConfirmationPolicy; a group is as confirmed as its
// least-confirmed member and the policy is asked once per group whether it is
// final.
//
// # Usage
//
//	txWatcher := watching.NewTransactionConfirmationWatcher(txHandler, blockRepo)
//	balanceWatcher := watching.NewBalanceWatcher(balanceHandler, blockRepo)
//
//	// called by the synchronizer for every block event
//	removals, err := txWatcher.Execute(ctx, block, height, domain.BlockAdded)
package watching
