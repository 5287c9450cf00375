package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRevocationStore_RevokeAndCheck(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRevocationStore()

	require.NoError(t, store.Revoke(ctx, "token-abc", time.Now().Add(time.Hour)))

	revoked, err := store.IsRevoked(ctx, "token-abc")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = store.IsRevoked(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMemoryRevocationStore_IgnoresExpiredTokens(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRevocationStore()

	require.NoError(t, store.Revoke(ctx, "stale", time.Now().Add(-time.Second)))
	assert.Equal(t, 0, store.Count())
}

func TestMemoryRevocationStore_DropsExpiredOnWrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRevocationStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Revoke(ctx, "short", now.Add(time.Minute)))
	require.NoError(t, store.Revoke(ctx, "long", now.Add(time.Hour)))

	now = now.Add(2 * time.Minute)
	revoked, _ := store.IsRevoked(ctx, "short")
	assert.False(t, revoked, "a token past its expiry no longer needs to be rejected")

	require.NoError(t, store.Revoke(ctx, "next", now.Add(time.Hour)))
	assert.Equal(t, 2, store.Count())
}

func TestMemoryRevocationStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRevocationStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		jti := fmt.Sprintf("jti-%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Revoke(ctx, jti, time.Now().Add(time.Hour))
		}()
		go func() {
			defer wg.Done()
			_, _ = store.IsRevoked(ctx, jti)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, store.Count())
}

func TestRedisRevocationStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisRevocationStore(client)
	require.NoError(t, store.Revoke(ctx, "jti-1", time.Now().Add(10*time.Minute)))

	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl := mr.TTL("telecare:revoked:jti-1")
	assert.True(t, ttl > 9*time.Minute && ttl <= 10*time.Minute, "ttl %s", ttl)

	mr.FastForward(11 * time.Minute)
	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisRevocationStore_SkipsExpiredTokens(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisRevocationStore(client)
	require.NoError(t, store.Revoke(context.Background(), "old", time.Now().Add(-time.Minute)))
	assert.False(t, mr.Exists("telecare:revoked:old"))
}

func TestRedisRevocationStore_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedisRevocationStore(client).IsRevoked(context.Background(), "jti")
	assert.Error(t, err)
}
