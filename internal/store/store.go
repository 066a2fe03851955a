// Package store provides data access layer interfaces and implementations.
// This package abstracts database operations to improve maintainability
// and decouple orchestration logic from specific database implementations.
package store

import "gorm.io/gorm"

// Store aggregates all data store interfaces.
// It provides a single point of access for all database operations.
type Store interface {
	Project() ProjectStore
	Analysis() AnalysisStore
	Lock() LockStore

	// DB returns the underlying database connection for advanced operations.
	// Use sparingly - prefer using specific store methods.
	DB() *gorm.DB

	// Transaction executes operations within a database transaction.
	Transaction(fn func(Store) error) error
}

// gormStore implements Store interface using GORM.
type gormStore struct {
	db            *gorm.DB
	projectStore  ProjectStore
	analysisStore AnalysisStore
	lockStore     LockStore
}

// NewStore creates a new Store instance with GORM backend.
func NewStore(db *gorm.DB) Store {
	return &gormStore{
		db:            db,
		projectStore:  newProjectStore(db),
		analysisStore: newAnalysisStore(db),
		lockStore:     newLockStore(db),
	}
}

func (s *gormStore) Project() ProjectStore {
	return s.projectStore
}

func (s *gormStore) Analysis() AnalysisStore {
	return s.analysisStore
}

func (s *gormStore) Lock() LockStore {
	return s.lockStore
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Transaction(fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
