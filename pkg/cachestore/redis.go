package cachestore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const backendRedis = "redis"

// DefaultRedisPrefix namespaces all keys written by RedisStorage.
const DefaultRedisPrefix = "shell"

// RedisStorage keeps stores in Redis.
//
// Layout:
//
//	<prefix>:caches        SET of store names
//	<prefix>:cache:<name>  HASH request key -> JSON entry
type RedisStorage struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStorage creates a storage on top of an existing client. The client
// stays owned by the caller.
func NewRedisStorage(redisClient *redis.Client, prefix string) *RedisStorage {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStorage{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (r *RedisStorage) namesKey() string {
	return r.prefix + ":caches"
}

func (r *RedisStorage) storeKey(name string) string {
	return r.prefix + ":cache:" + name
}

// Names implements Storage.
func (r *RedisStorage) Names(ctx context.Context) ([]string, error) {
	names, err := r.redis.SMembers(ctx, r.namesKey()).Result()
	if err != nil {
		StoreErrors.WithLabelValues(backendRedis, "names").Inc()
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Has implements Storage.
func (r *RedisStorage) Has(ctx context.Context, name string) (bool, error) {
	ok, err := r.redis.SIsMember(ctx, r.namesKey(), name).Result()
	if err != nil {
		StoreErrors.WithLabelValues(backendRedis, "has").Inc()
		return false, fmt.Errorf("redis sismember: %w", err)
	}
	return ok, nil
}

// Populate implements Storage. The store hash is replaced and registered in a
// single MULTI/EXEC transaction.
func (r *RedisStorage) Populate(ctx context.Context, name string, entries []*Entry) error {
	if err := validateName(name); err != nil {
		return err
	}

	fields := make(map[string]interface{}, len(entries))
	for _, entry := range entries {
		data, err := encodeEntry(entry)
		if err != nil {
			StoreErrors.WithLabelValues(backendRedis, "populate").Inc()
			return err
		}
		fields[entry.Key()] = data
	}

	key := r.storeKey(name)
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(fields) > 0 {
			pipe.HSet(ctx, key, fields)
		}
		pipe.SAdd(ctx, r.namesKey(), name)
		return nil
	})
	if err != nil {
		StoreErrors.WithLabelValues(backendRedis, "populate").Inc()
		return fmt.Errorf("redis populate %s: %w", name, err)
	}

	PopulatedEntries.WithLabelValues(backendRedis).Set(float64(len(fields)))
	return nil
}

// Match implements Storage.
func (r *RedisStorage) Match(ctx context.Context, name, key string) (*Entry, error) {
	data, err := r.redis.HGet(ctx, r.storeKey(name), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			recordMatch(backendRedis, ErrNotFound)
			return nil, ErrNotFound
		}
		recordMatch(backendRedis, err)
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	entry, err := decodeEntry(data)
	if err != nil {
		recordMatch(backendRedis, err)
		return nil, err
	}
	recordMatch(backendRedis, nil)
	return entry, nil
}

// Delete implements Storage.
func (r *RedisStorage) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, r.namesKey(), name)
		pipe.Del(ctx, r.storeKey(name))
		return nil
	})
	if err != nil {
		StoreErrors.WithLabelValues(backendRedis, "delete").Inc()
		return false, fmt.Errorf("redis delete %s: %w", name, err)
	}
	return removed.Val() > 0, nil
}

// Close implements Storage. The Redis client is not closed.
func (r *RedisStorage) Close() error {
	return nil
}
