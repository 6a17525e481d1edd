package models

import (
	"time"

	"gorm.io/gorm"
)

// CacheEntry is a durable cache row keyed by (resource_type, identifier, variant).
type CacheEntry struct {
	ResourceType string    `gorm:"primaryKey;size:32"`
	Identifier   string    `gorm:"primaryKey;size:64"`
	Variant      string    `gorm:"primaryKey;size:32"`
	Payload      []byte    `gorm:"not null"`
	ExpiresAt    time.Time `gorm:"index;not null"`
	UpdatedAt    time.Time
}

// TableName pins the durable cache table name.
func (CacheEntry) TableName() string {
	return "cache_entries"
}

// MigrateCacheModels creates the durable cache table.
func MigrateCacheModels(db *gorm.DB) error {
	return db.AutoMigrate(&CacheEntry{})
}
