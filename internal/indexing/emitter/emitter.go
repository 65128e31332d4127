package emitter

import (
	"context"
	"log/slog"

	"github.com/vietddude/blockwatch/internal/core/domain"
)

// Emitter defines the interface for publishing watch events
type Emitter interface {
	// Emit sends a single event
	Emit(ctx context.Context, event *domain.Event) error

	// Close closes the emitter connection
	Close() error
}

// LogEmitter writes events to a logger. Used when no broker is configured.
type LogEmitter struct {
	log *slog.Logger
}

// NewLogEmitter creates an emitter logging to log, or slog.Default when nil.
func NewLogEmitter(log *slog.Logger) *LogEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &LogEmitter{log: log}
}

func (e *LogEmitter) Emit(ctx context.Context, event *domain.Event) error {
	e.log.InfoContext(ctx, "Event",
		"type", event.EventType,
		"watch", event.WatchID,
		"reference", event.Reference,
		"tx", event.TxHash,
		"address", event.Address,
		"block", event.BlockHash,
		"confirmation", event.Confirmation,
	)
	return nil
}

func (e *LogEmitter) Close() error {
	return nil
}
