package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rostilos/CodeCrow-sub008/internal/model"
	"github.com/rostilos/CodeCrow-sub008/internal/store"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init(logger.Config{Level: "error", Format: "text"})
	m.Run()
}

func TestTarget_Key(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		want   string
	}{
		{"pr analysis", PRAnalysis(7, "feature/x", "abc123", 42), "PR_ANALYSIS:7:feature/x:c=abc123:pr=42"},
		{"branch analysis", BranchAnalysis(7, "main", "def"), "BRANCH_ANALYSIS:7:main:c=def"},
		{"rag indexing", RAGIndexing(7, "main"), "RAG_INDEXING:7:main"},
		{"pr without commit", Target{ProjectID: 1, Branch: "b", Type: model.LockTypePRAnalysis, PRNumber: 3}, "PR_ANALYSIS:1:b:pr=3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.target.Key())
			assert.Equal(t, tt.target.Key(), tt.target.Key())
		})
	}

	// commit and PR segments are labelled so they can't collide
	a := Target{ProjectID: 1, Branch: "b", Type: model.LockTypePRAnalysis, CommitHash: "5"}
	b := Target{ProjectID: 1, Branch: "b", Type: model.LockTypePRAnalysis, PRNumber: 5}
	assert.NotEqual(t, a.Key(), b.Key())
}

func newTestManager(t *testing.T, owner string, poll time.Duration) (*Manager, store.Store) {
	t.Helper()
	s, cleanup := store.SetupTestDB(t)
	t.Cleanup(cleanup)
	return NewManager(s.Lock(), Options{OwnerInstanceID: owner, TTL: time.Minute, PollInterval: poll}), s
}

func TestManager_TryAcquireAndRelease(t *testing.T) {
	m, s := newTestManager(t, "node-a", 10*time.Millisecond)
	ctx := context.Background()
	target := PRAnalysis(1, "feature", "abc", 42)

	ok, err := m.TryAcquire(ctx, target)
	require.NoError(t, err)
	require.True(t, ok)

	held, err := s.Lock().GetActive(ctx, target.Key(), time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, held)
	assert.Equal(t, "node-a", held.OwnerInstanceID)
	require.NotNil(t, held.PRNumber)
	assert.Equal(t, 42, *held.PRNumber)

	other := NewManager(s.Lock(), Options{OwnerInstanceID: "node-b"})
	ok, err = other.TryAcquire(ctx, target)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Release(ctx, target.Key()))
	require.NoError(t, m.Release(ctx, target.Key()), "release is idempotent")

	ok, err = other.TryAcquire(ctx, target)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestManager_TryAcquireRejectsUnknownType(t *testing.T) {
	m, _ := newTestManager(t, "node-a", 10*time.Millisecond)
	_, err := m.TryAcquire(context.Background(), Target{ProjectID: 1, Branch: "b", Type: "NOPE"})
	assert.Error(t, err)
}

func TestManager_AcquireWithWaitTimesOut(t *testing.T) {
	m, _ := newTestManager(t, "node-a", 20*time.Millisecond)
	ctx := context.Background()
	target := PRAnalysis(1, "feature", "abc", 42)

	ok, err := m.TryAcquire(ctx, target)
	require.NoError(t, err)
	require.True(t, ok)

	var ticks atomic.Int32
	wait := 150 * time.Millisecond
	start := time.Now()
	key, ok, err := m.AcquireWithWait(ctx, target, wait, func(waited, remaining time.Duration) {
		ticks.Add(1)
		assert.Positive(t, remaining)
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, key)
	assert.GreaterOrEqual(t, elapsed, wait, "must not give up before the timeout")
	assert.Greater(t, ticks.Load(), int32(1))
}

func TestManager_AcquireWithWaitLogsHolder(t *testing.T) {
	holder, s := newTestManager(t, "node-a", 10*time.Millisecond)
	ctx := context.Background()
	target := PRAnalysis(1, "feature", "abc", 42)

	ok, err := holder.TryAcquire(ctx, target)
	require.NoError(t, err)
	require.True(t, ok)

	core, logs := observer.New(zapcore.DebugLevel)
	waiter := NewManager(s.Lock(), Options{OwnerInstanceID: "node-b", TTL: time.Minute, PollInterval: 10 * time.Millisecond})
	waiter.log = zap.New(core)

	_, ok, err = waiter.AcquireWithWait(ctx, target, 50*time.Millisecond, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	entries := logs.FilterMessage("Lock held by another run").All()
	require.Len(t, entries, 1, "holder is logged once per wait")
	assert.Equal(t, "node-a", entries[0].ContextMap()["holder"])
}

func TestManager_AcquireWithWaitSucceedsAfterRelease(t *testing.T) {
	m, _ := newTestManager(t, "node-a", 10*time.Millisecond)
	ctx := context.Background()
	target := PRAnalysis(1, "feature", "abc", 42)

	ok, err := m.TryAcquire(ctx, target)
	require.NoError(t, err)
	require.True(t, ok)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = m.Release(ctx, target.Key())
	}()

	key, ok, err := m.AcquireWithWait(ctx, target, 5*time.Second, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, target.Key(), key)
}

func TestManager_AcquireWithWaitMutualExclusion(t *testing.T) {
	m, _ := newTestManager(t, "node-a", 5*time.Millisecond)
	ctx := context.Background()
	target := PRAnalysis(1, "feature", "abc", 42)

	var inside, maxInside, completed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key, ok, err := m.AcquireWithWait(ctx, target, 10*time.Second, nil)
			if err != nil || !ok {
				return
			}
			n := inside.Add(1)
			for {
				cur := maxInside.Load()
				if n <= cur || maxInside.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inside.Add(-1)
			completed.Add(1)
			_ = m.Release(ctx, key)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Equal(t, int32(4), completed.Load())
}

func TestManager_AcquireWithWaitHonorsContext(t *testing.T) {
	m, _ := newTestManager(t, "node-a", 10*time.Millisecond)
	target := PRAnalysis(1, "feature", "abc", 42)

	ok, err := m.TryAcquire(context.Background(), target)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, ok, err = m.AcquireWithWait(ctx, target, time.Minute, nil)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

type failingStore struct{}

func (failingStore) TryAcquire(context.Context, *model.AnalysisLock, time.Time) (bool, error) {
	return false, errors.New("db down")
}

func (failingStore) Release(context.Context, string, string) error { return errors.New("db down") }

func (failingStore) GetActive(context.Context, string, time.Time) (*model.AnalysisLock, error) {
	return nil, errors.New("db down")
}

func TestManager_StoreErrorsPropagate(t *testing.T) {
	m := NewManager(failingStore{}, Options{OwnerInstanceID: "x", PollInterval: time.Millisecond})
	target := RAGIndexing(1, "main")

	_, ok, err := m.AcquireWithWait(context.Background(), target, time.Second, nil)
	assert.False(t, ok)
	assert.ErrorContains(t, err, "db down")
	assert.Error(t, m.Release(context.Background(), target.Key()))
}

func TestManager_ReleaseLeavesTakenOverLock(t *testing.T) {
	s, cleanup := store.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	target := PRAnalysis(1, "feature", "abc", 7)

	stale := NewManager(s.Lock(), Options{OwnerInstanceID: "node-a", TTL: time.Millisecond})
	ok, err := stale.TryAcquire(ctx, target)
	require.NoError(t, err)
	require.True(t, ok)
	time.Sleep(5 * time.Millisecond)

	successor := NewManager(s.Lock(), Options{OwnerInstanceID: "node-b", TTL: time.Minute})
	ok, err = successor.TryAcquire(ctx, target)
	require.NoError(t, err)
	require.True(t, ok, "expired lock is free")

	require.NoError(t, stale.Release(ctx, target.Key()))

	held, err := s.Lock().GetActive(ctx, target.Key(), time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, held)
	assert.Equal(t, "node-b", held.OwnerInstanceID)
}
