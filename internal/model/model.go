// Package model defines the data models for the application.
// All models use GORM for ORM operations; SQLite is the default backend and PostgreSQL
// is supported for deployments where several server processes share one database.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringArray is a custom type for storing string arrays as JSON text
type StringArray []string

// Value implements driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	return string(data), err
}

// Scan implements sql.Scanner interface
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	raw, err := scanBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, s)
}

// JSONMap is a custom type for storing JSON objects as text
type JSONMap map[string]interface{}

// Value implements driver.Valuer interface
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	data, err := json.Marshal(j)
	return string(data), err
}

// Scan implements sql.Scanner interface
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	raw, err := scanBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, j)
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported scan type %T", value)
	}
}

// AllModels returns all models for auto migration
func AllModels() []interface{} {
	return []interface{}{
		&Project{},
		&AnalysisLock{},
		&CodeAnalysis{},
		&CodeAnalysisIssue{},
	}
}
