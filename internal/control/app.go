package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"

	"github.com/vietddude/blockwatch/internal/core/config"
	"github.com/vietddude/blockwatch/internal/core/watching"
	"github.com/vietddude/blockwatch/internal/core/worker"
	"github.com/vietddude/blockwatch/internal/indexing/emitter"
	"github.com/vietddude/blockwatch/internal/indexing/health"
	"github.com/vietddude/blockwatch/internal/indexing/indexer"
	"github.com/vietddude/blockwatch/internal/indexing/reorg"
	"github.com/vietddude/blockwatch/internal/indexing/tracker"
	"github.com/vietddude/blockwatch/internal/infra/chain"
	"github.com/vietddude/blockwatch/internal/infra/chain/bitcoin"
	redisclient "github.com/vietddude/blockwatch/internal/infra/redis"
)

// App is the main application struct that manages the pipeline lifecycle.
type App struct {
	cfg          *config.AppConfig
	source       chain.Source
	stores       *Stores
	pipeline     *indexer.Pipeline
	txTracker    *tracker.TransactionTracker
	balTracker   *tracker.BalanceTracker
	emitter      emitter.Emitter
	redisClient  *redisclient.Client
	lock         *redisclient.Lock
	pruner       *worker.Pruner
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option overrides a dependency, mainly for tests.
type Option func(*App)

// WithSource replaces the node connection.
func WithSource(src chain.Source) Option {
	return func(a *App) { a.source = src }
}

// WithEmitter replaces the event emitter.
func WithEmitter(em emitter.Emitter) Option {
	return func(a *App) { a.emitter = em }
}

// WithStores replaces the storage built from config.
func WithStores(stores *Stores) Option {
	return func(a *App) { a.stores = stores }
}

// NewApp creates the application with all dependencies initialized.
func NewApp(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*App, error) {
	a := &App{
		cfg: cfg,
		log: slog.Default().With("component", "app"),
	}
	for _, opt := range opts {
		opt(a)
	}

	params, err := bitcoin.Params(cfg.Node.Network)
	if err != nil {
		return nil, err
	}

	// 1. Storage
	if a.stores == nil {
		a.stores, err = OpenStores(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
	}

	// 2. Node
	if a.source == nil {
		rpc, err := bitcoin.Dial(cfg.Node)
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("failed to connect to node: %w", err)
		}
		a.source = bitcoin.NewClient(rpc, cfg.Node.Retry)
	}

	// 3. Event delivery and pipeline lock
	if cfg.Redis.Enabled() {
		a.redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			a.closeAll()
			return nil, err
		}
		a.lock = a.redisClient.Lock()
		if a.emitter == nil {
			a.emitter = a.redisClient.Publisher()
		}
	}
	if a.emitter == nil {
		a.emitter = emitter.NewLogEmitter(slog.Default().With("component", "events"))
	}

	// 4. Pipeline, trackers and watchers
	a.pipeline = indexer.NewPipeline(indexer.Config{
		Source:       a.source,
		BlockRepo:    a.stores.Blocks,
		Reorg:        reorg.Config{MaxDepth: cfg.Sync.MaxReorgDepth},
		StartHeight:  cfg.Sync.StartHeightOrTip(),
		ScanInterval: cfg.Sync.ScanInterval,
		BatchSize:    cfg.Sync.BatchSize,
		Cursors:      a.stores.Cursors,
		CursorName:   params.Name,
	})
	a.registerWatchers(params)

	a.pruner = worker.NewPruner(
		worker.PrunerConfig{KeepBlocks: cfg.Sync.KeepBlocks, Interval: cfg.Sync.PruneInterval},
		a.stores.Blocks,
		worker.Anchors(a.stores.TxWatches.List),
		worker.Anchors(a.stores.BalanceWatches.List),
	)

	// 5. Health
	a.healthMon = health.NewMonitor(a.pipeline)
	if a.txTracker != nil {
		a.healthMon.AddWatchCounter(watching.KindTransaction, a.stores.TxWatches.Count)
	}
	if a.balTracker != nil {
		a.healthMon.AddWatchCounter(watching.KindBalance, a.stores.BalanceWatches.Count)
	}
	if db := a.stores.DB(); db != nil {
		a.healthMon.AddComponent("database", db.Health)
	}
	if a.redisClient != nil {
		a.healthMon.AddComponent("redis", a.redisClient.Health)
	}
	a.healthServer = health.NewServer(a.healthMon, cfg.Server.Port)

	return a, nil
}

// registerWatchers adds each tracker ahead of its watcher so subscriptions
// are fresh when a block is scanned.
func (a *App) registerWatchers(params *chaincfg.Params) {
	logger := slog.Default()

	if a.cfg.Watching.Transactions {
		a.txTracker = tracker.NewTransactionTracker(a.stores.TxWatches, a.stores.Tracked, a.emitter, logger)
		w := watching.NewTransactionConfirmationWatcher[tracker.TxRequest](a.txTracker, a.stores.Blocks, watching.WithLogger(logger))
		a.pipeline.AddListener("tracked-transactions", a.txTracker)
		a.pipeline.AddListener(w.Kind(), indexer.WatcherListener(w))
	}

	if a.cfg.Watching.Balances {
		a.balTracker = tracker.NewBalanceTracker(a.stores.BalanceWatches, a.stores.Wallets, params, a.emitter, logger)
		w := watching.NewBalanceWatcher[tracker.AddressContext, decimal.Decimal](a.balTracker, a.stores.Blocks, watching.WithLogger(logger))
		a.pipeline.AddListener("wallets", a.balTracker)
		a.pipeline.AddListener(w.Kind(), indexer.WatcherListener(w))
	}
}

// Pipeline returns the block pipeline.
func (a *App) Pipeline() *indexer.Pipeline {
	return a.pipeline
}

// Stores returns the repositories in use.
func (a *App) Stores() *Stores {
	return a.stores
}

// Start starts the health server and the pipeline. With Redis configured the
// pipeline waits for the lock and stops if the lock is lost.
func (a *App) Start(ctx context.Context) error {
	if a.txTracker != nil {
		if err := a.txTracker.Refresh(ctx); err != nil {
			return err
		}
	}
	if a.balTracker != nil {
		if err := a.balTracker.Refresh(ctx); err != nil {
			return err
		}
		a.log.Info("Loaded wallet addresses", "count", len(a.balTracker.Addresses()))
	}

	ctx, a.cancel = context.WithCancel(ctx)

	// Start Health Server
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if db := a.stores.DB(); db != nil {
		db.StartMetricsCollector(ctx)
	}

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.pruner.Start(ctx)
	}()
	go func() {
		defer a.wg.Done()
		if err := a.run(ctx); err != nil {
			a.log.Error("Pipeline stopped", "error", err)
		}
	}()
	return nil
}

func (a *App) run(ctx context.Context) error {
	if a.lock == nil {
		return a.pipeline.Start(ctx)
	}

	a.log.Info("Waiting for pipeline lock")
	if err := a.lock.Wait(ctx, a.lock.TTL()/3); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.lock.Release(releaseCtx); err != nil {
			a.log.Warn("Failed to release pipeline lock", "error", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lost := make(chan error, 1)
	go func() {
		lost <- a.lock.Keep(runCtx)
		cancel()
	}()

	err := a.pipeline.Start(runCtx)
	cancel()
	if lockErr := <-lost; lockErr != nil {
		return fmt.Errorf("pipeline lock: %w", lockErr)
	}
	return err
}

// Stop stops the pipeline and releases all connections.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping blockwatch...")

	_ = a.pipeline.Stop()
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	err := a.healthServer.Stop(ctx)
	a.closeAll()
	return err
}

func (a *App) closeAll() {
	if a.emitter != nil {
		if err := a.emitter.Close(); err != nil {
			a.log.Warn("Failed to close emitter", "error", err)
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.stores != nil {
		if err := a.stores.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}
