package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenledger/cbio-forecast/pkg/config"
)

func disabledClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	return client
}

func TestNewClient_Disabled(t *testing.T) {
	client := disabledClient(t)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(disabledClient(t), "test")
	ctx := context.Background()

	var result string
	found, err := cache.Get(ctx, "key", &result)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, cache.Set(ctx, "key", "value", time.Minute))
}

func TestLocker_DisabledAlwaysAcquires(t *testing.T) {
	locker := NewLocker(disabledClient(t), "test")
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "train", time.Minute)
	require.NoError(t, err)

	again, err := locker.Acquire(ctx, "train", time.Minute)
	require.NoError(t, err)

	assert.NoError(t, release(ctx))
	assert.NoError(t, again(ctx))
}

func TestMacroKey(t *testing.T) {
	assert.Equal(t, "macro:BRL=X:2024-01-01:2024-02-01", MacroKey("BRL=X", "2024-01-01", "2024-02-01"))
}
