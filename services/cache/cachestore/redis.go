package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"market_data_hub/services/cache"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "mdh:cache:"

// RedisStore keeps cache entries as JSON strings with a native TTL.
type RedisStore struct {
	rdb *redis.Client
}

type redisEntry struct {
	Payload   []byte `json:"p"`
	ExpiresAt int64  `json:"e"` // unix millis
}

// NewRedisStore connects to addr and pings the server.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func redisKey(key cache.Key) string {
	return redisKeyPrefix + key.String()
}

func (s *RedisStore) Get(ctx context.Context, key cache.Key) (cache.Entry, bool, error) {
	b, err := s.rdb.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var m redisEntry
	if err := json.Unmarshal(b, &m); err != nil {
		return cache.Entry{}, false, fmt.Errorf("decode redis entry %s: %w", key, err)
	}
	return cache.Entry{Key: key, Payload: m.Payload, ExpiresAt: time.UnixMilli(m.ExpiresAt)}, true, nil
}

func (s *RedisStore) Set(ctx context.Context, entry cache.Entry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	b, err := json.Marshal(redisEntry{Payload: entry.Payload, ExpiresAt: entry.ExpiresAt.UnixMilli()})
	if err != nil {
		return fmt.Errorf("encode redis entry %s: %w", entry.Key, err)
	}
	if err := s.rdb.Set(ctx, redisKey(entry.Key), b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", entry.Key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, rt cache.ResourceType, identifier string) error {
	patterns := []string{redisKeyPrefix + rt.String() + ":*"}
	if identifier != "" {
		base := redisKeyPrefix + cache.Key{Type: rt, Identifier: identifier}.String()
		patterns = []string{base, base + ":*"}
	}

	for _, pattern := range patterns {
		iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("redis del %s: %w", iter.Val(), err)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("redis scan %s: %w", pattern, err)
		}
	}
	return nil
}

// PurgeExpired is a no-op: redis expires keys on its own.
func (s *RedisStore) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

var _ cache.Store = (*RedisStore)(nil)
