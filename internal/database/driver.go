package database

import "gorm.io/gorm"

// Driver abstracts the differences between supported relational databases
type Driver interface {
	// Name returns the driver name ("sqlite", "postgres")
	Name() string

	// Open returns a GORM dialector for the DSN
	Open(dsn string) (gorm.Dialector, error)

	// PreMigrationConfig applies pool and session settings before migration.
	// Foreign keys must not be enforced yet.
	PreMigrationConfig(db *gorm.DB) error

	// PostMigrationConfig applies settings that need the final schema
	PostMigrationConfig(db *gorm.DB) error
}
