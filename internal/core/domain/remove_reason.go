package domain

import "strings"

// RemoveReason is a set of flags explaining why a watch left storage.
type RemoveReason uint8

const (
	RemoveNone         RemoveReason = 0
	RemoveCompleted    RemoveReason = 1 << 0
	RemoveBlockRemoved RemoveReason = 1 << 1
)

// Has reports whether every bit of flag is set.
func (r RemoveReason) Has(flag RemoveReason) bool {
	return flag != RemoveNone && r&flag == flag
}

func (r RemoveReason) String() string {
	if r == RemoveNone {
		return "none"
	}
	var parts []string
	if r.Has(RemoveCompleted) {
		parts = append(parts, "completed")
	}
	if r.Has(RemoveBlockRemoved) {
		parts = append(parts, "block_removed")
	}
	if rest := r &^ (RemoveCompleted | RemoveBlockRemoved); rest != 0 {
		parts = append(parts, "unknown")
	}
	return strings.Join(parts, "|")
}

// WatchState is the lifecycle position of a watch. It is never persisted;
// it follows from presence in storage and the removal reason.
type WatchState string

const (
	WatchStatePending                  WatchState = "pending"
	WatchStateCompleted                WatchState = "completed"
	WatchStateInvalidated              WatchState = "invalidated"
	WatchStateCompletedThenInvalidated WatchState = "completed_then_invalidated"
)

// StateOf returns the state a watch enters when removed with reason.
func StateOf(reason RemoveReason) WatchState {
	switch {
	case reason.Has(RemoveCompleted | RemoveBlockRemoved):
		return WatchStateCompletedThenInvalidated
	case reason.Has(RemoveBlockRemoved):
		return WatchStateInvalidated
	case reason.Has(RemoveCompleted):
		return WatchStateCompleted
	default:
		return WatchStatePending
	}
}
