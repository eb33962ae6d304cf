package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLimit(t *testing.T) {
	store := NewMemoryStore(DefaultConfig())
	ctx := context.Background()

	// 前5次放行
	for i := 0; i < 5; i++ {
		result, err := store.Hit(ctx, "user@example.com")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "attempt %d should be allowed", i+1)
		assert.Equal(t, 4-i, result.Remaining)
	}

	// 第6次拒绝
	result, err := store.Hit(ctx, "user@example.com")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestMemoryStoreKeysAreIndependent(t *testing.T) {
	store := NewMemoryStore(Config{Limit: 2, WindowDuration: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = store.Hit(ctx, "a@example.com")
	}
	result, err := store.Hit(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	// 另一个key不受影响
	result, err = store.Hit(ctx, "b@example.com")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestMemoryStoreWindowAnchoredAtFirstAttempt(t *testing.T) {
	store := NewMemoryStore(Config{Limit: 5, WindowDuration: 15 * time.Minute})
	ctx := context.Background()

	current := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	// 窗口从第一次尝试开始计时
	for i := 0; i < 6; i++ {
		_, _ = store.Hit(ctx, "k")
	}
	result, _ := store.Hit(ctx, "k")
	assert.False(t, result.Allowed)

	// 14分钟后仍在同一窗口内
	current = current.Add(14 * time.Minute)
	result, _ = store.Hit(ctx, "k")
	assert.False(t, result.Allowed)

	// 满15分钟后窗口重置，重新放行
	current = current.Add(1 * time.Minute)
	result, err := store.Hit(ctx, "k")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 4, result.Remaining)
}

func TestMemoryStoreReset(t *testing.T) {
	store := NewMemoryStore(Config{Limit: 1, WindowDuration: time.Minute})
	ctx := context.Background()

	_, _ = store.Hit(ctx, "k")
	result, _ := store.Hit(ctx, "k")
	assert.False(t, result.Allowed)

	require.NoError(t, store.Reset(ctx, "k"))
	result, _ = store.Hit(ctx, "k")
	assert.True(t, result.Allowed)
}

func TestMemoryStoreCleanup(t *testing.T) {
	store := NewMemoryStore(Config{Limit: 1, WindowDuration: time.Minute})
	ctx := context.Background()

	current := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	_, _ = store.Hit(ctx, "old")
	current = current.Add(2 * time.Minute)
	_, _ = store.Hit(ctx, "fresh")

	store.Cleanup()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.NotContains(t, store.windows, "old")
	assert.Contains(t, store.windows, "fresh")
}
