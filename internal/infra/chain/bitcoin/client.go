package bitcoin

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"

	"github.com/vietddude/blockwatch/internal/indexing/metrics"
)

// Config holds node connection configuration.
type Config struct {
	URL      string      `yaml:"url"`
	User     string      `yaml:"user"`
	Password string      `yaml:"password"`
	Network  string      `yaml:"network"`
	Retry    RetryConfig `yaml:"retry"`
}

// RetryConfig defines retry behavior for node calls.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialDelay    time.Duration `yaml:"initial_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	BackoffMultiple float64       `yaml:"backoff_multiple"`
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    500 * time.Millisecond,
	MaxDelay:        10 * time.Second,
	BackoffMultiple: 2.0,
}

// RPC is the subset of the btcd rpcclient used by Client.
type RPC interface {
	GetBlockCount() (int64, error)
	GetBlockHash(blockHeight int64) (*chainhash.Hash, error)
	GetBlock(blockHash *chainhash.Hash) (*wire.MsgBlock, error)
}

// Dial opens an HTTP POST mode connection to a bitcoind-compatible node.
func Dial(cfg Config) (*rpcclient.Client, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse rpc url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("rpc url %q has no host", cfg.URL)
	}

	connCfg := &rpcclient.ConnConfig{
		Host:         parsed.Host,
		User:         cfg.User,
		Pass:         cfg.Password,
		HTTPPostMode: true,
		DisableTLS:   parsed.Scheme != "https",
	}
	return rpcclient.New(connCfg, nil)
}

// Params returns the chain parameters for a network name.
func Params(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(network) {
	case "", "mainnet", "bitcoin":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}

// Client is an instrumented, retrying block source over a node RPC.
type Client struct {
	rpc   RPC
	retry RetryConfig
	log   *slog.Logger
}

// NewClient wraps rpc. A zero retry config uses DefaultRetryConfig.
func NewClient(rpc RPC, retry RetryConfig) *Client {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryConfig
	}
	return &Client{
		rpc:   rpc,
		retry: retry,
		log:   slog.Default().With("component", "bitcoin"),
	}
}

// BestHeight returns the height of the node's best chain tip.
func (c *Client) BestHeight(ctx context.Context) (int32, error) {
	var count int64
	err := c.call(ctx, "get_block_count", func() (err error) {
		count, err = c.rpc.GetBlockCount()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get block count: %w", err)
	}
	metrics.ChainLatestBlock.Set(float64(count))
	return int32(count), nil
}

// BlockHash returns the hash of the block at height on the node's best chain.
func (c *Client) BlockHash(ctx context.Context, height int32) (chainhash.Hash, error) {
	var hash *chainhash.Hash
	err := c.call(ctx, "get_block_hash", func() (err error) {
		hash, err = c.rpc.GetBlockHash(int64(height))
		return err
	})
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("failed to get block hash at %d: %w", height, err)
	}
	return *hash, nil
}

// Block returns the full block with the given hash.
func (c *Client) Block(ctx context.Context, hash chainhash.Hash) (*wire.MsgBlock, error) {
	var block *wire.MsgBlock
	err := c.call(ctx, "get_block", func() (err error) {
		block, err = c.rpc.GetBlock(&hash)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get block %s: %w", hash, err)
	}
	return block, nil
}

// call executes fn with exponential backoff, recording one metric sample per
// attempt.
func (c *Client) call(ctx context.Context, method string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		started := time.Now()
		err := fn()
		metrics.RPCCallsTotal.WithLabelValues(method).Inc()
		metrics.RPCLatency.WithLabelValues(method).Observe(time.Since(started).Seconds())
		if err == nil {
			return nil
		}
		metrics.RPCErrorsTotal.WithLabelValues(method).Inc()
		lastErr = err

		if isFatal(err) || attempt == c.retry.MaxAttempts-1 {
			break
		}

		delay := backoff(attempt, c.retry)
		c.log.Warn("Node call failed, retrying", "method", method, "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// isFatal reports errors that will not go away on retry: malformed requests
// and unknown blocks.
func isFatal(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "-32600") ||
		strings.Contains(s, "-32601") ||
		strings.Contains(s, "-32602") ||
		strings.Contains(s, "-5:") ||
		strings.Contains(s, "-8:") ||
		strings.Contains(s, "out of range") ||
		strings.Contains(s, "not found")
}

func backoff(attempt int, cfg RetryConfig) time.Duration {
	multiple := cfg.BackoffMultiple
	if multiple < 1 {
		multiple = 1
	}
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(multiple, float64(attempt)))
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}
