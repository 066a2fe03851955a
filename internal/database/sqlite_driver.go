package database

import (
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

// SQLiteDriver implements Driver for an embedded SQLite file.
// Processes on the same host may share the file; busy_timeout makes a writer wait
// for the file lock instead of failing with SQLITE_BUSY.
type SQLiteDriver struct{}

// Name returns the driver name
func (d *SQLiteDriver) Name() string {
	return "sqlite"
}

// Open opens a SQLite database connection
func (d *SQLiteDriver) Open(dsn string) (gorm.Dialector, error) {
	return sqlite.Open(dsn), nil
}

// PreMigrationConfig uses a single connection with WAL journaling
func (d *SQLiteDriver) PreMigrationConfig(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if err := db.Exec(p).Error; err != nil {
			logger.Warn("Failed to apply SQLite pragma", zap.String("pragma", p), zap.Error(err))
		}
	}

	logger.Info("SQLite pre-migration config applied")
	return nil
}

// PostMigrationConfig enables foreign key enforcement (needed for issue cascade deletes)
func (d *SQLiteDriver) PostMigrationConfig(db *gorm.DB) error {
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		logger.Warn("Failed to enable foreign keys", zap.Error(err))
	}
	return nil
}
