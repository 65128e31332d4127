package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BlockEventsProcessed tracks block events handled per watch kind
	BlockEventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockwatch_block_events_total",
			Help: "Total number of block events processed by watchers",
		},
		[]string{"kind", "event"},
	)

	// BlockEventErrors tracks block events that failed
	BlockEventErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockwatch_block_event_errors_total",
			Help: "Total number of block events that failed",
		},
		[]string{"kind", "event"},
	)

	// BlockEventDuration tracks time spent per block event
	BlockEventDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blockwatch_block_event_duration_seconds",
			Help:    "Time spent processing a block event",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "event"},
	)

	// WatchesCreated tracks newly created watches
	WatchesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockwatch_watches_created_total",
			Help: "Total number of watches created",
		},
		[]string{"kind"},
	)

	// WatchesRemoved tracks removed watches by reason
	WatchesRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockwatch_watches_removed_total",
			Help: "Total number of watches removed",
		},
		[]string{"kind", "reason"},
	)

	// ConfirmationDecisions tracks handler decisions
	ConfirmationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockwatch_confirmation_decisions_total",
			Help: "Total number of confirmation decisions by outcome",
		},
		[]string{"kind", "type", "completed"},
	)

	// RPCCallsTotal tracks node RPC calls
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockwatch_rpc_calls_total",
			Help: "Total number of node RPC calls",
		},
		[]string{"method"},
	)

	// RPCErrorsTotal tracks node RPC errors
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockwatch_rpc_errors_total",
			Help: "Total number of node RPC errors",
		},
		[]string{"method"},
	)

	// RPCLatency tracks node RPC latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blockwatch_rpc_latency_seconds",
			Help:    "Node RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// ChainLatestBlock tracks the node's best height
	ChainLatestBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockwatch_chain_latest_block",
			Help: "Best block height reported by the node",
		},
	)

	// SyncLatestBlock tracks the latest block delivered to watchers
	SyncLatestBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockwatch_sync_latest_block",
			Help: "Latest block height delivered to watchers",
		},
	)

	// CursorHeight tracks the height of the last event every listener accepted
	CursorHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockwatch_cursor_height",
			Help: "Height of the last block event delivered to every listener",
		},
	)

	// ReorgsDetected tracks reorganizations and their depth
	ReorgsDetected = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blockwatch_reorg_depth_blocks",
			Help:    "Depth of detected chain reorganizations",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 50, 100},
		},
	)

	// CallbacksPublished tracks outbound notifications
	CallbacksPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockwatch_callbacks_published_total",
			Help: "Total number of callback events published",
		},
		[]string{"event_type", "status"},
	)

	// DBConnectionPoolUsage tracks database pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockwatch_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
