package settings

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojohq/crm-automation/internal/domain"
)

type stubRepo struct {
	settings domain.BusinessSettings
	calls    int
}

func (r *stubRepo) GetBusinessSettings(ctx context.Context) (domain.BusinessSettings, error) {
	r.calls++
	return r.settings, nil
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestGetCachesAfterFirstRead(t *testing.T) {
	repo := &stubRepo{settings: domain.BusinessSettings{
		BusinessName: "Iron Tiger Dojo",
		AIName:       "Mia",
	}}
	cache := NewCache(repo, newTestRedis(t))
	ctx := context.Background()

	first, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Iron Tiger Dojo", first.BusinessName)
	assert.Equal(t, 1, repo.calls)

	second, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.calls, "second read should come from cache")
}

func TestInvalidateForcesReload(t *testing.T) {
	repo := &stubRepo{settings: domain.BusinessSettings{BusinessName: "Old Name"}}
	cache := NewCache(repo, newTestRedis(t))
	ctx := context.Background()

	_, err := cache.Get(ctx)
	require.NoError(t, err)

	repo.settings.BusinessName = "New Name"
	require.NoError(t, cache.Invalidate(ctx))

	got, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "New Name", got.BusinessName)
	assert.Equal(t, 2, repo.calls)
}

func TestGetWithoutRedis(t *testing.T) {
	repo := &stubRepo{settings: domain.BusinessSettings{BusinessName: "No Cache"}}
	cache := NewCache(repo, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := cache.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, "No Cache", got.BusinessName)
	}
	assert.Equal(t, 3, repo.calls)
	assert.NoError(t, cache.Invalidate(ctx))
}

func TestGetSurvivesCorruptCacheEntry(t *testing.T) {
	repo := &stubRepo{settings: domain.BusinessSettings{BusinessName: "Fresh"}}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(repo, client)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "crm:settings:business", "{not json", 0).Err())

	got, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Fresh", got.BusinessName)
	assert.Equal(t, 1, repo.calls)
}
