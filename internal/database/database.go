// Package database provides database initialization and connection management.
// It uses GORM with a driver abstraction: SQLite for single-host deployments and
// PostgreSQL when several server processes share the lock and analysis tables.
package database

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rostilos/CodeCrow-sub008/internal/model"
	"github.com/rostilos/CodeCrow-sub008/pkg/errors"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
)

const (
	// DefaultDBPath is the SQLite file used when no DSN is configured
	DefaultDBPath = "./data/codecrow.db"
)

// Config selects the database driver and connection string
type Config struct {
	// Driver is "sqlite" (default) or "postgres"
	Driver string `yaml:"driver"`
	// DSN is the file path for sqlite or the connection string for postgres
	DSN string `yaml:"dsn"`
	// MaxOpenConns bounds the pool for drivers that support concurrency
	MaxOpenConns int `yaml:"max_open_conns"`
	// LogQueries enables GORM SQL logging at warn level
	LogQueries bool `yaml:"log_queries"`
}

var (
	db   *gorm.DB
	once sync.Once
)

// Init initializes the database connection and performs auto-migration.
// This function is safe to call multiple times; only the first call will take effect.
func Init(cfg Config) error {
	var initErr error
	once.Do(func() {
		initErr = initDB(cfg)
	})
	return initErr
}

// InitWithPath initializes a SQLite database at the given path.
// Used by tests and the CLI maintenance commands.
func InitWithPath(dbPath string) error {
	return Init(Config{Driver: "sqlite", DSN: dbPath})
}

func driverFor(cfg Config) (Driver, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return &SQLiteDriver{}, nil
	case "postgres", "postgresql":
		return &PostgresDriver{MaxOpenConns: cfg.MaxOpenConns}, nil
	default:
		return nil, errors.New(errors.ErrCodeConfigInvalid, "unsupported database driver: "+cfg.Driver)
	}
}

func initDB(cfg Config) error {
	driver, err := driverFor(cfg)
	if err != nil {
		return err
	}

	dsn := cfg.DSN
	if driver.Name() == "sqlite" {
		if dsn == "" {
			dsn = DefaultDBPath
		}
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Error("Failed to create database directory", zap.Error(err), zap.String("dir", dir))
			return errors.Wrap(errors.ErrCodeDBConnection, "failed to create database directory", err)
		}
	}

	logger.Info("Initializing database", zap.String("driver", driver.Name()))

	gormLog := gormlogger.Default.LogMode(gormlogger.Silent)
	if cfg.LogQueries {
		gormLog = gormlogger.Default.LogMode(gormlogger.Warn)
	}

	dialector, err := driver.Open(dsn)
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to open database", err)
	}

	db, err = gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to connect to database", err)
	}

	if err := driver.PreMigrationConfig(db); err != nil {
		logger.Error("Failed to apply pre-migration config", zap.Error(err))
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to apply pre-migration config", err)
	}

	if err := migrate(); err != nil {
		return err
	}

	if err := driver.PostMigrationConfig(db); err != nil {
		logger.Error("Failed to apply post-migration config", zap.Error(err))
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to apply post-migration config", err)
	}

	logger.Info("Database initialized successfully", zap.String("driver", driver.Name()))
	return nil
}

func migrate() error {
	models := model.AllModels()
	if err := db.AutoMigrate(models...); err != nil {
		logger.Error("Failed to run database migrations", zap.Error(err))
		return errors.Wrap(errors.ErrCodeDBMigration, "failed to run database migrations", err)
	}
	logger.Info("Database migrations completed", zap.Int("models", len(models)))
	return nil
}

// Get returns the database instance.
// Panics if the database hasn't been initialized.
func Get() *gorm.DB {
	if db == nil {
		panic("database not initialized, call Init first")
	}
	return db
}

// Close closes the database connection
func Close() error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	logger.Info("Closing database connection")
	return sqlDB.Close()
}

// ResetForTesting resets the database state so tests can re-initialize it.
func ResetForTesting() {
	if db != nil {
		if sqlDB, _ := db.DB(); sqlDB != nil {
			sqlDB.Close()
		}
		db = nil
	}
	once = sync.Once{}
}

// HealthCheck pings the database
func HealthCheck() error {
	if db == nil {
		return errors.New(errors.ErrCodeDBConnection, "database not initialized")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to get database connection", err)
	}
	return sqlDB.Ping()
}
