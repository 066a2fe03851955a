package lock

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rostilos/CodeCrow-sub008/consts"
	"github.com/rostilos/CodeCrow-sub008/internal/model"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
	"github.com/rostilos/CodeCrow-sub008/pkg/telemetry"
)

// Store is the persistence the manager needs; store.LockStore satisfies it.
type Store interface {
	TryAcquire(ctx context.Context, lock *model.AnalysisLock, now time.Time) (bool, error)
	Release(ctx context.Context, lockKey, ownerInstanceID string) error
	GetActive(ctx context.Context, lockKey string, now time.Time) (*model.AnalysisLock, error)
}

// WaitTickFunc is called after every failed attempt while waiting.
// waited is the time spent so far, remaining the time left in the window.
type WaitTickFunc func(waited, remaining time.Duration)

// Options configures a Manager
type Options struct {
	// OwnerInstanceID is recorded on every lock row this manager creates
	OwnerInstanceID string
	// TTL is the lifetime of an acquired lock
	TTL time.Duration
	// PollInterval is the delay between attempts in AcquireWithWait
	PollInterval time.Duration
}

// Manager acquires and releases analysis locks for one process.
type Manager struct {
	store Store
	opts  Options
	now   func() time.Time
	log   *zap.Logger
}

// NewManager creates a Manager. Zero options fall back to the package defaults.
func NewManager(store Store, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = consts.DefaultLockTTL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = consts.DefaultLockPollInterval
	}
	return &Manager{
		store: store,
		opts:  opts,
		now:   func() time.Time { return time.Now().UTC() },
		log:   logger.Named("lock"),
	}
}

// Owner returns the instance id recorded on acquired locks
func (m *Manager) Owner() string {
	return m.opts.OwnerInstanceID
}

// TryAcquire makes a single acquisition attempt for target.
func (m *Manager) TryAcquire(ctx context.Context, target Target) (bool, error) {
	if !target.Type.Valid() {
		return false, fmt.Errorf("invalid lock type %q", target.Type)
	}

	now := m.now()
	row := &model.AnalysisLock{
		LockKey:         target.Key(),
		ProjectID:       target.ProjectID,
		Branch:          target.Branch,
		LockType:        target.Type,
		CommitHash:      target.CommitHash,
		OwnerInstanceID: m.opts.OwnerInstanceID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(m.opts.TTL),
	}
	if target.PRNumber > 0 {
		pr := target.PRNumber
		row.PRNumber = &pr
	}

	ok, err := m.store.TryAcquire(ctx, row, now)
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", row.LockKey, err)
	}
	return ok, nil
}

// AcquireWithWait retries TryAcquire every PollInterval until it succeeds or
// waitTimeout has elapsed. It returns the lock key and true on success, and
// ("", false, nil) on timeout. onWaitTick may be nil.
//
// A non-nil error means the store failed or ctx was cancelled; in both cases
// no lock is held.
func (m *Manager) AcquireWithWait(ctx context.Context, target Target, waitTimeout time.Duration, onWaitTick WaitTickFunc) (string, bool, error) {
	key := target.Key()
	start := time.Now()
	deadline := start.Add(waitTimeout)
	metrics := telemetry.GetMetrics()

	for attempt := 1; ; attempt++ {
		ok, err := m.TryAcquire(ctx, target)
		if err != nil {
			return "", false, err
		}
		if ok {
			waited := time.Since(start)
			metrics.RecordLockAcquisition(ctx, string(target.Type), "acquired", waited.Seconds())
			m.log.Debug("Lock acquired",
				zap.String(logger.FieldLockKey, key),
				zap.Int("attempts", attempt),
				zap.Duration("waited", waited),
			)
			return key, true, nil
		}

		if attempt == 1 {
			m.logHolder(ctx, key)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			metrics.RecordLockAcquisition(ctx, string(target.Type), "timeout", time.Since(start).Seconds())
			m.log.Info("Timed out waiting for lock",
				zap.String(logger.FieldLockKey, key),
				zap.Int("attempts", attempt),
				zap.Duration("wait_timeout", waitTimeout),
			)
			return "", false, nil
		}

		if onWaitTick != nil {
			onWaitTick(time.Since(start), remaining)
		}

		sleep := m.opts.PollInterval
		if sleep > remaining {
			sleep = remaining
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", false, ctx.Err()
		case <-timer.C:
		}
	}
}

// logHolder reports who holds a contended key
func (m *Manager) logHolder(ctx context.Context, key string) {
	holder, err := m.store.GetActive(ctx, key, m.now())
	if err != nil || holder == nil {
		return
	}
	m.log.Debug("Lock held by another run",
		zap.String(logger.FieldLockKey, key),
		zap.String("holder", holder.OwnerInstanceID),
		zap.Time("expires_at", holder.ExpiresAt),
	)
}

// Release deletes the lock if this manager's instance still owns it.
// Releasing an unheld key, or one taken over after expiry, is a no-op.
func (m *Manager) Release(ctx context.Context, lockKey string) error {
	if err := m.store.Release(ctx, lockKey, m.opts.OwnerInstanceID); err != nil {
		return fmt.Errorf("release lock %s: %w", lockKey, err)
	}
	m.log.Debug("Lock released", zap.String(logger.FieldLockKey, lockKey))
	return nil
}
