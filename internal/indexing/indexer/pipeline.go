package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/wire"

	"github.com/vietddude/blockwatch/internal/core/cursor"
	"github.com/vietddude/blockwatch/internal/core/domain"
	"github.com/vietddude/blockwatch/internal/core/watching"
	"github.com/vietddude/blockwatch/internal/indexing/metrics"
	"github.com/vietddude/blockwatch/internal/indexing/reorg"
	"github.com/vietddude/blockwatch/internal/infra/storage/memory"
)

// Listener receives block events in chain order.
type Listener interface {
	OnBlock(ctx context.Context, block *wire.MsgBlock, height int32, eventType domain.BlockEventType) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, block *wire.MsgBlock, height int32, eventType domain.BlockEventType) error

func (f ListenerFunc) OnBlock(ctx context.Context, block *wire.MsgBlock, height int32, eventType domain.BlockEventType) error {
	return f(ctx, block, height, eventType)
}

// WatcherListener feeds block events to a watcher.
func WatcherListener[W watching.Anchored](w *watching.Watcher[W]) Listener {
	return ListenerFunc(func(ctx context.Context, block *wire.MsgBlock, height int32, eventType domain.BlockEventType) error {
		_, err := w.Execute(ctx, block, height, eventType)
		return err
	})
}

type namedListener struct {
	name     string
	listener Listener
}

// Pipeline implements the Indexer interface. It is the only producer of block
// events: one event at a time, every listener in registration order.
type Pipeline struct {
	cfg       Config
	detector  *reorg.Detector
	rollback  *reorg.Handler
	cursor    *cursor.Manager
	listeners []namedListener

	mu sync.Mutex // serializes steps

	statusMu sync.RWMutex
	status   Status

	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
}

// NewPipeline creates a new indexing pipeline
func NewPipeline(cfg Config) *Pipeline {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.CursorName == "" {
		cfg.CursorName = "pipeline"
	}
	if cfg.Cursors == nil {
		cfg.Cursors = memory.NewCursorRepo(memory.NewMemoryStorage())
	}
	p := &Pipeline{
		cfg:      cfg,
		detector: reorg.NewDetector(cfg.Reorg, cfg.BlockRepo),
		cursor:   cursor.NewManager(cfg.Cursors, cfg.CursorName),
		stop:     make(chan struct{}),
	}
	p.rollback = reorg.NewHandler(cfg.BlockRepo, func(ctx context.Context, block *wire.MsgBlock, height int32) error {
		return p.dispatch(ctx, block, height, domain.BlockRemoving)
	})
	return p
}

// AddListener registers a listener. Must be called before Start.
func (p *Pipeline) AddListener(name string, l Listener) {
	p.listeners = append(p.listeners, namedListener{name: name, listener: l})
}

// Start begins the indexing loop
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline already running")
	}
	defer p.running.Store(false)

	slog.Info("Pipeline started", "listeners", len(p.listeners), "interval", p.cfg.ScanInterval)

	ticker := time.NewTicker(p.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		if err := p.Step(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Pipeline step failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-p.stop:
			return nil
		case <-ticker.C:
		}
	}
}

// Stop stops the pipeline
func (p *Pipeline) Stop() error {
	p.stopOnce.Do(func() { close(p.stop) })
	return nil
}

// GetStatus returns the current status
func (p *Pipeline) GetStatus() Status {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	s := p.status
	s.Running = p.running.Load()
	s.Listeners = make([]string, len(p.listeners))
	for i, l := range p.listeners {
		s.Listeners[i] = l.name
	}
	return s
}

// Step brings the stored chain level with the node: it finishes the event the
// cursor was left on, rolls back orphaned blocks and adds up to BatchSize new
// blocks.
func (p *Pipeline) Step(ctx context.Context) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	defer func() {
		p.statusMu.Lock()
		if err != nil {
			p.status.LastError = err.Error()
		} else {
			p.status.LastError = ""
		}
		p.statusMu.Unlock()
	}()

	best, err := p.cfg.Source.BestHeight(ctx)
	if err != nil {
		return err
	}

	if err := p.resume(ctx, best); err != nil {
		return err
	}

	info, err := p.detector.CheckTip(ctx, best, p.cfg.Source.BlockHash)
	if err != nil {
		return fmt.Errorf("reorg check failed: %w", err)
	}
	if info.Detected {
		if _, err := p.rollback.Rollback(ctx, info); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
	}

	tip, err := p.cfg.BlockRepo.GetLatest(ctx)
	if err != nil {
		return fmt.Errorf("failed to get stored tip: %w", err)
	}

	next := p.cfg.StartHeight
	if tip != nil {
		next = tip.Height + 1
	} else if next < 0 || next > best {
		next = best
	}

	for n := 0; next <= best && n < p.cfg.BatchSize; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		added, err := p.addBlock(ctx, next, best, tip != nil)
		if err != nil {
			return err
		}
		if added == nil {
			// Parent mismatch: rolled back, pick up next tick
			break
		}
		tip = added
		next++
	}

	p.statusMu.Lock()
	p.status.LatestBlock = best
	if tip != nil {
		p.status.CurrentBlock = tip.Height
		p.status.Lag = int64(best - tip.Height)
	}
	p.statusMu.Unlock()
	return nil
}

func (p *Pipeline) addBlock(ctx context.Context, height, best int32, checkParent bool) (*domain.Block, error) {
	hash, err := p.cfg.Source.BlockHash(ctx, height)
	if err != nil {
		return nil, err
	}
	msg, err := p.cfg.Source.Block(ctx, hash)
	if err != nil {
		return nil, err
	}

	if checkParent {
		info, err := p.detector.CheckParentHash(ctx, height, msg.Header.PrevBlock, best, p.cfg.Source.BlockHash)
		if err != nil {
			return nil, fmt.Errorf("reorg check failed: %w", err)
		}
		if info.Detected {
			if _, err := p.rollback.Rollback(ctx, info); err != nil {
				return nil, fmt.Errorf("rollback failed: %w", err)
			}
			return nil, nil
		}
	}

	// Cursor first: a stored block is then either delivered or still owed.
	if _, err := p.cursor.Begin(ctx, hash, height, domain.BlockAdded, len(p.listeners)); err != nil {
		return nil, err
	}
	block := domain.BlockFromHeader(height, &msg.Header)
	// Saved before delivery so watchers can resolve the new block's height.
	if err := p.cfg.BlockRepo.Save(ctx, block); err != nil {
		return nil, fmt.Errorf("save block failed: %w", err)
	}
	if err := p.dispatch(ctx, msg, height, domain.BlockAdded); err != nil {
		return nil, err
	}

	metrics.SyncLatestBlock.Set(float64(height))
	slog.Debug("Block added", "height", height, "hash", hash, "txs", len(msg.Transactions))
	return block, nil
}

// resume finishes an event some listeners have not accepted, whether a
// listener failed or the process stopped mid-delivery.
func (p *Pipeline) resume(ctx context.Context, best int32) error {
	cur, err := p.cursor.Get(ctx)
	if err != nil {
		return err
	}
	if cur == nil || cur.State == domain.CursorStateDelivered {
		return nil
	}

	stored, err := p.cfg.BlockRepo.GetByHash(ctx, cur.BlockHash)
	if err != nil {
		return fmt.Errorf("failed to get block %s: %w", cur.BlockHash, err)
	}
	if stored == nil {
		// Not saved yet; adding the block delivers it from the cursor.
		return nil
	}

	switch cur.EventType {
	case domain.BlockAdded:
		if cur.Height <= best {
			hash, err := p.cfg.Source.BlockHash(ctx, cur.Height)
			if err != nil {
				return err
			}
			if hash == cur.BlockHash {
				msg, err := p.cfg.Source.Block(ctx, hash)
				if err != nil {
					return err
				}
				slog.Info("Resuming block delivery", "height", cur.Height, "hash", hash, "listener", cur.NextListener)
				return p.dispatch(ctx, msg, cur.Height, domain.BlockAdded)
			}
		}
		// Left the node's chain: the rollback unwinds it for every listener.
		slog.Warn("Undelivered block was reorganized away", "height", cur.Height, "hash", cur.BlockHash)
		return nil

	case domain.BlockRemoving:
		// Blocks are removed tip first, so the block is still the stored tip.
		info := &reorg.ReorgInfo{
			Detected:   true,
			Depth:      1,
			SafeHeight: stored.Height - 1,
			Orphaned:   []*domain.Block{stored},
		}
		if _, err := p.rollback.Rollback(ctx, info); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("%w: %d", domain.ErrUnknownEventType, int(cur.EventType))
	}
}

// dispatch delivers one event to every listener in order. The cursor moves
// past each listener that accepts it, so delivering the same event again
// resumes at the listener that failed.
func (p *Pipeline) dispatch(ctx context.Context, block *wire.MsgBlock, height int32, eventType domain.BlockEventType) error {
	hash := block.BlockHash()

	start, err := p.cursor.Begin(ctx, hash, height, eventType, len(p.listeners))
	if err != nil {
		return err
	}

	for i := start; i < len(p.listeners); i++ {
		l := p.listeners[i]
		if err := l.listener.OnBlock(ctx, block, height, eventType); err != nil {
			return fmt.Errorf("listener %s failed on %s block %d (%s): %w", l.name, eventType, height, hash, err)
		}
		if i+1 < len(p.listeners) {
			if err := p.cursor.Advance(ctx, i+1); err != nil {
				return err
			}
		}
	}
	return p.cursor.Complete(ctx)
}
