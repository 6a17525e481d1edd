package cachestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market_data_hub/models"
	"market_data_hub/services/cache"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStore keeps cache entries in the cache_entries table through gorm.
// It works on both the postgres and the sqlite driver.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore creates a store over db and makes sure the table exists.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := models.MigrateCacheModels(db); err != nil {
		return nil, fmt.Errorf("failed to migrate cache_entries: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Get(ctx context.Context, key cache.Key) (cache.Entry, bool, error) {
	var row models.CacheEntry
	err := s.db.WithContext(ctx).
		Where("resource_type = ? AND identifier = ? AND variant = ?", key.Type.String(), key.Identifier, key.Variant).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("read cache entry %s: %w", key, err)
	}

	return cache.Entry{Key: key, Payload: row.Payload, ExpiresAt: row.ExpiresAt}, true, nil
}

func (s *SQLStore) Set(ctx context.Context, entry cache.Entry) error {
	row := models.CacheEntry{
		ResourceType: entry.Key.Type.String(),
		Identifier:   entry.Key.Identifier,
		Variant:      entry.Key.Variant,
		Payload:      entry.Payload,
		ExpiresAt:    entry.ExpiresAt.UTC(),
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "resource_type"}, {Name: "identifier"}, {Name: "variant"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "expires_at", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("write cache entry %s: %w", entry.Key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, rt cache.ResourceType, identifier string) error {
	q := s.db.WithContext(ctx).Where("resource_type = ?", rt.String())
	if identifier != "" {
		q = q.Where("identifier = ?", identifier)
	}
	if err := q.Delete(&models.CacheEntry{}).Error; err != nil {
		return fmt.Errorf("delete cache entries for %s: %w", rt, err)
	}
	return nil
}

func (s *SQLStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&models.CacheEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge expired cache entries: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Close is a no-op; the *gorm.DB is shared and closed by its owner.
func (s *SQLStore) Close() error { return nil }

var _ cache.Store = (*SQLStore)(nil)
