package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rostilos/CodeCrow-sub008/internal/model"
)

func newLock(key, owner string, now time.Time, ttl time.Duration) *model.AnalysisLock {
	pr := 42
	return &model.AnalysisLock{
		LockKey:         key,
		ProjectID:       1,
		Branch:          "feature",
		LockType:        model.LockTypePRAnalysis,
		CommitHash:      "abc",
		PRNumber:        &pr,
		OwnerInstanceID: owner,
		ExpiresAt:       now.Add(ttl),
	}
}

func TestLockStore_TryAcquire(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now()

	ok, err := s.Lock().TryAcquire(ctx, newLock("k1", "a", now, time.Minute), now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Lock().TryAcquire(ctx, newLock("k1", "b", now, time.Minute), now)
	require.NoError(t, err)
	assert.False(t, ok, "held lock must not be acquired twice")

	ok, err = s.Lock().TryAcquire(ctx, newLock("k2", "b", now, time.Minute), now)
	require.NoError(t, err)
	assert.True(t, ok, "different key is independent")

	active, err := s.Lock().GetActive(ctx, "k1", now)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "a", active.OwnerInstanceID)
}

func TestLockStore_ExpiredLockIsFree(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now()

	ok, err := s.Lock().TryAcquire(ctx, newLock("k", "a", now, time.Second), now)
	require.NoError(t, err)
	require.True(t, ok)

	later := now.Add(2 * time.Second)
	active, err := s.Lock().GetActive(ctx, "k", later)
	require.NoError(t, err)
	assert.Nil(t, active, "expired row counts as not held")

	ok, err = s.Lock().TryAcquire(ctx, newLock("k", "b", later, time.Minute), later)
	require.NoError(t, err)
	assert.True(t, ok)

	active, err = s.Lock().GetActive(ctx, "k", later)
	require.NoError(t, err)
	assert.Equal(t, "b", active.OwnerInstanceID)
}

func TestLockStore_ConcurrentTryAcquire(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()
	now := time.Now()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.Lock().TryAcquire(context.Background(), newLock("shared", fmt.Sprintf("owner-%d", i), now, time.Minute), now)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestLockStore_ReleaseIsIdempotent(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now()

	_, err := s.Lock().TryAcquire(ctx, newLock("k", "a", now, time.Minute), now)
	require.NoError(t, err)

	require.NoError(t, s.Lock().Release(ctx, "k", "a"))
	require.NoError(t, s.Lock().Release(ctx, "k", "a"))
	require.NoError(t, s.Lock().Release(ctx, "never-held", "a"))

	var count int64
	require.NoError(t, s.DB().Model(&model.AnalysisLock{}).Where("lock_key = ?", "k").Count(&count).Error)
	assert.Zero(t, count)
}

func TestLockStore_ReleaseKeepsOtherOwnersLock(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now()

	// a held the key until it expired, b took it over
	_, err := s.Lock().TryAcquire(ctx, newLock("k", "a", now.Add(-2*time.Minute), time.Minute), now.Add(-2*time.Minute))
	require.NoError(t, err)
	ok, err := s.Lock().TryAcquire(ctx, newLock("k", "b", now, time.Minute), now)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Lock().Release(ctx, "k", "a"))

	active, err := s.Lock().GetActive(ctx, "k", now)
	require.NoError(t, err)
	require.NotNil(t, active, "late release of the previous owner must not free the key")
	assert.Equal(t, "b", active.OwnerInstanceID)
}

func TestLockStore_ListAndPurge(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now()

	for i, ttl := range []time.Duration{time.Second, time.Minute, time.Hour} {
		_, err := s.Lock().TryAcquire(ctx, newLock(fmt.Sprintf("k%d", i), "a", now, ttl), now)
		require.NoError(t, err)
	}

	later := now.Add(30 * time.Second)
	active, err := s.Lock().ListActive(ctx, later)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	svc := NewLockCleanupService(s.Lock(), "")
	svc.now = func() time.Time { return later }
	assert.Equal(t, int64(1), svc.Purge(ctx))
	assert.Equal(t, int64(0), svc.Purge(ctx))
}

func TestLockCleanupService_StartStop(t *testing.T) {
	s, cleanup := SetupTestDB(t)
	defer cleanup()

	svc := NewLockCleanupService(s.Lock(), "@every 1h")
	require.NoError(t, svc.Start())
	svc.Stop()

	bad := NewLockCleanupService(s.Lock(), "not a schedule")
	assert.Error(t, bad.Start())
}
