package watching

import "errors"

var (
	// ErrAnchorAboveHeight is returned when a watch's anchor block is taller
	// than the event being processed. The driver delivered events out of order.
	ErrAnchorAboveHeight = errors.New("anchor block height exceeds event height")

	// ErrDuplicateCompletion is returned when a watch is completed twice
	// within one event.
	ErrDuplicateCompletion = errors.New("watch completed more than once")

	// ErrUnknownCompletion is returned when a strategy completes a watch that
	// is not part of the active set.
	ErrUnknownCompletion = errors.New("completed watch is not active")

	// ErrNilBlock is returned when Execute is called without a block.
	ErrNilBlock = errors.New("block is nil")
)
