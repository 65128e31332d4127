package bitcoin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRPC struct {
	count      int64
	hashes     map[int64]chainhash.Hash
	blocks     map[chainhash.Hash]*wire.MsgBlock
	countErrs  []error
	countCalls int
}

func (m *mockRPC) GetBlockCount() (int64, error) {
	m.countCalls++
	if len(m.countErrs) > 0 {
		err := m.countErrs[0]
		m.countErrs = m.countErrs[1:]
		return 0, err
	}
	return m.count, nil
}

func (m *mockRPC) GetBlockHash(height int64) (*chainhash.Hash, error) {
	h, ok := m.hashes[height]
	if !ok {
		return nil, errors.New("-8: Block height out of range")
	}
	return &h, nil
}

func (m *mockRPC) GetBlock(hash *chainhash.Hash) (*wire.MsgBlock, error) {
	b, ok := m.blocks[*hash]
	if !ok {
		return nil, errors.New("-5: Block not found")
	}
	return b, nil
}

var fastRetry = RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiple: 2}

func TestClient_BestHeightRetries(t *testing.T) {
	rpc := &mockRPC{count: 800000, countErrs: []error{errors.New("connection refused")}}
	client := NewClient(rpc, fastRetry)

	height, err := client.BestHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(800000), height)
	assert.Equal(t, 2, rpc.countCalls)
}

func TestClient_BestHeightGivesUp(t *testing.T) {
	rpc := &mockRPC{countErrs: []error{errors.New("a"), errors.New("b"), errors.New("c"), errors.New("d")}}
	client := NewClient(rpc, fastRetry)

	_, err := client.BestHeight(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, rpc.countCalls)
}

func TestClient_BlockHashAndBlock(t *testing.T) {
	block := wire.NewMsgBlock(wire.NewBlockHeader(1, &chainhash.Hash{}, &chainhash.Hash{}, 0, 7))
	hash := block.BlockHash()
	rpc := &mockRPC{
		hashes: map[int64]chainhash.Hash{10: hash},
		blocks: map[chainhash.Hash]*wire.MsgBlock{hash: block},
	}
	client := NewClient(rpc, fastRetry)
	ctx := context.Background()

	got, err := client.BlockHash(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, hash, got)

	b, err := client.Block(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, hash, b.BlockHash())

	_, err = client.BlockHash(ctx, 11)
	assert.ErrorContains(t, err, "out of range")
}

func TestClient_CancelledContext(t *testing.T) {
	rpc := &mockRPC{count: 1}
	client := NewClient(rpc, fastRetry)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.BestHeight(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, rpc.countCalls)
}

func TestParams(t *testing.T) {
	p, err := Params("regtest")
	require.NoError(t, err)
	assert.Equal(t, chaincfg.RegressionNetParams.Name, p.Name)

	p, err = Params("")
	require.NoError(t, err)
	assert.Equal(t, chaincfg.MainNetParams.Name, p.Name)

	_, err = Params("dogecoin")
	assert.Error(t, err)
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffMultiple: 2}
	assert.Equal(t, time.Second, backoff(0, cfg))
	assert.Equal(t, 4*time.Second, backoff(2, cfg))
	assert.Equal(t, 5*time.Second, backoff(5, cfg))
}
