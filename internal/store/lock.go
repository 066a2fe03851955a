package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rostilos/CodeCrow-sub008/internal/model"
)

// LockStore persists analysis locks. Atomicity comes from the unique index on
// lock_key, never from in-process synchronization, so every server process
// sharing the database contends on the same rows.
type LockStore interface {
	// TryAcquire inserts lock unless a non-expired row with the same key exists.
	// An expired row is removed in the same transaction. Contention yields
	// (false, nil); errors are reserved for database failures.
	TryAcquire(ctx context.Context, lock *model.AnalysisLock, now time.Time) (bool, error)

	// Release deletes the row for lockKey if ownerInstanceID holds it. Releasing
	// an absent key, or one another owner took over after expiry, is not an error.
	Release(ctx context.Context, lockKey, ownerInstanceID string) error

	// GetActive returns the non-expired lock for lockKey, or nil.
	GetActive(ctx context.Context, lockKey string, now time.Time) (*model.AnalysisLock, error)

	// ListActive returns every non-expired lock ordered by creation time.
	ListActive(ctx context.Context, now time.Time) ([]model.AnalysisLock, error)

	// PurgeExpired physically deletes rows whose expiry has passed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type lockStore struct {
	db *gorm.DB
}

func newLockStore(db *gorm.DB) LockStore {
	return &lockStore{db: db}
}

func (s *lockStore) TryAcquire(ctx context.Context, lock *model.AnalysisLock, now time.Time) (bool, error) {
	acquired := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("lock_key = ? AND expires_at <= ?", lock.LockKey, now).
			Delete(&model.AnalysisLock{}).Error; err != nil {
			return err
		}

		if lock.CreatedAt.IsZero() {
			lock.CreatedAt = now
		}
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "lock_key"}},
			DoNothing: true,
		}).Create(lock)
		if result.Error != nil {
			return result.Error
		}
		acquired = result.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

func (s *lockStore) Release(ctx context.Context, lockKey, ownerInstanceID string) error {
	return s.db.WithContext(ctx).
		Where("lock_key = ? AND owner_instance_id = ?", lockKey, ownerInstanceID).
		Delete(&model.AnalysisLock{}).Error
}

func (s *lockStore) GetActive(ctx context.Context, lockKey string, now time.Time) (*model.AnalysisLock, error) {
	var locks []model.AnalysisLock
	err := s.db.WithContext(ctx).
		Where("lock_key = ? AND expires_at > ?", lockKey, now).
		Limit(1).
		Find(&locks).Error
	if err != nil || len(locks) == 0 {
		return nil, err
	}
	return &locks[0], nil
}

func (s *lockStore) ListActive(ctx context.Context, now time.Time) ([]model.AnalysisLock, error) {
	var locks []model.AnalysisLock
	err := s.db.WithContext(ctx).
		Where("expires_at > ?", now).
		Order("created_at ASC").
		Find(&locks).Error
	return locks, err
}

func (s *lockStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&model.AnalysisLock{})
	return result.RowsAffected, result.Error
}
