package database

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

const defaultPostgresMaxOpenConns = 20

// PostgresDriver implements Driver for a shared PostgreSQL database
type PostgresDriver struct {
	MaxOpenConns int
}

// Name returns the driver name
func (d *PostgresDriver) Name() string {
	return "postgres"
}

// Open opens a PostgreSQL connection from a DSN or URL
func (d *PostgresDriver) Open(dsn string) (gorm.Dialector, error) {
	return postgres.Open(dsn), nil
}

// PreMigrationConfig sizes the connection pool
func (d *PostgresDriver) PreMigrationConfig(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	maxOpen := d.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultPostgresMaxOpenConns
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen / 2)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	logger.Info("PostgreSQL pool configured", zap.Int("max_open_conns", maxOpen))
	return nil
}

// PostMigrationConfig is a no-op; PostgreSQL enforces foreign keys natively
func (d *PostgresDriver) PostMigrationConfig(db *gorm.DB) error {
	return nil
}
