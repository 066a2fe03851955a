package store

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/rostilos/CodeCrow-sub008/consts"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

// LockCleanupService periodically deletes expired analysis lock rows.
// Expired rows are already ignored by acquisition; purging only keeps the table small.
type LockCleanupService struct {
	store    LockStore
	cron     *cron.Cron
	schedule string
	entryID  cron.EntryID
	now      func() time.Time
	mu       sync.Mutex
}

// NewLockCleanupService creates a cleanup service; an empty schedule uses the default
func NewLockCleanupService(store LockStore, schedule string) *LockCleanupService {
	if schedule == "" {
		schedule = consts.DefaultLockCleanupSchedule
	}
	return &LockCleanupService{
		store:    store,
		cron:     cron.New(),
		schedule: schedule,
		now:      time.Now,
	}
}

// Start schedules the purge job and runs one purge immediately
func (s *LockCleanupService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, err := s.cron.AddFunc(s.schedule, func() { s.Purge(context.Background()) })
	if err != nil {
		logger.Error("Failed to schedule lock cleanup", zap.String("schedule", s.schedule), zap.Error(err))
		return err
	}
	s.entryID = entryID
	s.cron.Start()

	logger.Info("Lock cleanup service started", zap.String("schedule", s.schedule))

	go s.Purge(context.Background())
	return nil
}

// Stop stops the scheduler and waits for a running purge to finish
func (s *LockCleanupService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		<-s.cron.Stop().Done()
		logger.Info("Lock cleanup service stopped")
	}
}

// Purge deletes expired lock rows once and returns how many were removed
func (s *LockCleanupService) Purge(ctx context.Context) int64 {
	start := time.Now()
	deleted, err := s.store.PurgeExpired(ctx, s.now())
	if err != nil {
		logger.Error("Failed to purge expired analysis locks", zap.Error(err))
		return 0
	}
	if deleted > 0 {
		logger.Info("Purged expired analysis locks",
			zap.Int64("deleted_count", deleted),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return deleted
}
