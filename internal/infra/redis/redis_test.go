package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/blockwatch/internal/core/domain"
)

type fakeCommands struct {
	added   []*redis.XAddArgs
	xaddErr error

	owner  string
	evals  []string
	setErr error
}

func (f *fakeCommands) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	if f.xaddErr != nil {
		return redis.NewStringResult("", f.xaddErr)
	}
	f.added = append(f.added, a)
	return redis.NewStringResult("1-0", nil)
}

func (f *fakeCommands) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if f.owner != "" {
		return redis.NewBoolResult(false, nil)
	}
	f.owner = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.evals = append(f.evals, script)
	if f.owner != args[0].(string) {
		return redis.NewCmdResult(int64(0), nil)
	}
	if script == releaseScript {
		f.owner = ""
	}
	return redis.NewCmdResult(int64(1), nil)
}

func TestPublisher_Emit(t *testing.T) {
	rdb := &fakeCommands{}
	p := newPublisher(rdb, "events", 1000)

	event := &domain.Event{
		EventType:    domain.EventTypeTransactionConfirmed,
		WatchID:      "w-1",
		Reference:    "order-7",
		Confirmation: 6,
	}
	require.NoError(t, p.Emit(context.Background(), event))
	require.Len(t, rdb.added, 1)

	args := rdb.added[0]
	assert.Equal(t, "events", args.Stream)
	assert.Equal(t, int64(1000), args.MaxLen)
	assert.True(t, args.Approx)

	values := args.Values.(map[string]interface{})
	assert.Equal(t, "transaction_confirmed", values["event_type"])
	assert.Equal(t, "w-1", values["watch_id"])

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(values["payload"].([]byte), &decoded))
	assert.Equal(t, "order-7", decoded.Reference)
	assert.Equal(t, 6, decoded.Confirmation)
}

func TestPublisher_EmitError(t *testing.T) {
	rdb := &fakeCommands{xaddErr: errors.New("connection refused")}
	p := newPublisher(rdb, "events", 0)

	err := p.Emit(context.Background(), &domain.Event{EventType: domain.EventTypeBalanceConfirmed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, rdb.added)
}

func TestLock(t *testing.T) {
	ctx := context.Background()
	rdb := &fakeCommands{}

	a := newLock(rdb, "pipeline", time.Second)
	b := newLock(rdb, "pipeline", time.Second)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second owner must not acquire a held lock")

	require.NoError(t, a.Refresh(ctx))
	assert.ErrorIs(t, b.Refresh(ctx), ErrLockLost)

	// Release by a non-owner leaves the lock held.
	require.NoError(t, b.Release(ctx))
	assert.Equal(t, a.token, rdb.owner)

	require.NoError(t, a.Release(ctx))
	assert.Empty(t, rdb.owner)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_Wait(t *testing.T) {
	rdb := &fakeCommands{owner: "someone-else"}
	l := newLock(rdb, "pipeline", time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx, 5*time.Millisecond), context.DeadlineExceeded)

	rdb.owner = ""
	require.NoError(t, l.Wait(context.Background(), 5*time.Millisecond))
	assert.Equal(t, l.token, rdb.owner)
}

func TestLock_KeepReturnsWhenLost(t *testing.T) {
	rdb := &fakeCommands{owner: "someone-else"}
	l := newLock(rdb, "pipeline", 30*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.ErrorIs(t, l.Keep(ctx), ErrLockLost)
}

func TestConfig_Enabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{URL: "redis://localhost:6379/0"}.Enabled())
}

func TestSetNXError(t *testing.T) {
	l := newLock(&fakeCommands{setErr: errors.New("boom")}, "k", time.Second)
	_, err := l.Acquire(context.Background())
	assert.Error(t, err)
}
