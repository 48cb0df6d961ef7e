package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/mediahub/pkg/billing"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), ClientConfig{URL: "redis://" + mr.Addr(), PoolSize: 5})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), ClientConfig{URL: "invalid://url"})
	assert.Error(t, err)
}

func TestNewClient_ConnectionFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), ClientConfig{URL: "redis://" + addr})
	assert.Error(t, err)
}

func TestLedger_RecordSeenRelease(t *testing.T) {
	client, mr := setupRedis(t)
	ledger := NewLedger(client, "", time.Hour)
	ctx := context.Background()

	seen, err := ledger.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	processed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, ledger.Record(ctx, &billing.LedgerEntry{
		EventID: "evt_1", EventType: "invoice.paid", ProcessedAt: processed,
	}))

	seen, err = ledger.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, time.Hour, mr.TTL("billing:event:evt_1"))

	entry, err := ledger.Entry(ctx, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "invoice.paid", entry.EventType)
	assert.True(t, processed.Equal(entry.ProcessedAt))

	require.NoError(t, ledger.Release(ctx, "evt_1"))
	seen, err = ledger.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestLedger_RecordKeepsFirstEntry(t *testing.T) {
	client, _ := setupRedis(t)
	ledger := NewLedger(client, "test", 0)
	ctx := context.Background()

	require.NoError(t, ledger.Record(ctx, &billing.LedgerEntry{EventID: "evt_1", EventType: "invoice.paid"}))
	require.NoError(t, ledger.Record(ctx, &billing.LedgerEntry{EventID: "evt_1", EventType: "invoice.payment_failed"}))

	entry, err := ledger.Entry(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, "invoice.paid", entry.EventType)
}

func TestLedger_Expires(t *testing.T) {
	client, mr := setupRedis(t)
	ledger := NewLedger(client, "", time.Minute)
	ctx := context.Background()

	require.NoError(t, ledger.Record(ctx, &billing.LedgerEntry{EventID: "evt_1"}))
	mr.FastForward(2 * time.Minute)

	seen, err := ledger.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestLedger_EntryMissing(t *testing.T) {
	client, _ := setupRedis(t)
	entry, err := NewLedger(client, "", 0).Entry(context.Background(), "evt_missing")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestLedger_RedisDown(t *testing.T) {
	client, mr := setupRedis(t)
	ledger := NewLedger(client, "", 0)
	mr.Close()

	_, err := ledger.Seen(context.Background(), "evt_1")
	assert.Error(t, err)
}

func TestWindowLimiter_Allow(t *testing.T) {
	client, mr := setupRedis(t)
	limiter := NewWindowLimiter(client, "signin", 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "ip:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i+1)
	}

	allowed, err := limiter.Allow(ctx, "ip:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)

	other, err := limiter.Allow(ctx, "ip:10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other)

	mr.FastForward(61 * time.Second)
	allowed, err = limiter.Allow(ctx, "ip:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestWindowLimiter_WindowDoesNotSlide(t *testing.T) {
	client, mr := setupRedis(t)
	limiter := NewWindowLimiter(client, "", 10, time.Minute)
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	mr.FastForward(40 * time.Second)
	_, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)

	assert.Equal(t, 20*time.Second, mr.TTL("ratelimit:k"))
}

func TestWindowLimiter_RemainingAndReset(t *testing.T) {
	client, _ := setupRedis(t)
	limiter := NewWindowLimiter(client, "", 5, time.Minute)
	ctx := context.Background()

	remaining, err := limiter.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)

	for i := 0; i < 7; i++ {
		_, err := limiter.Allow(ctx, "k")
		require.NoError(t, err)
	}
	remaining, err = limiter.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	ttl, err := limiter.ResetIn(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	require.NoError(t, limiter.Reset(ctx, "k"))
	remaining, err = limiter.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)
}

func TestWindowLimiter_FailsOpen(t *testing.T) {
	client, mr := setupRedis(t)
	limiter := NewWindowLimiter(client, "", 1, time.Minute)
	mr.Close()

	allowed, err := limiter.Allow(context.Background(), "k")
	assert.Error(t, err)
	assert.True(t, allowed)
}
