package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps caches in Redis: a set <ns>:caches indexes cache
// names, and each cache is a hash <ns>:cache:<name> of key to JSON snapshot.
type RedisStorage struct {
	client    redis.Cmdable
	namespace string
}

func NewRedisStorage(client redis.Cmdable, namespace string) *RedisStorage {
	return &RedisStorage{client: client, namespace: namespace}
}

func (s *RedisStorage) indexKey() string {
	return s.namespace + ":caches"
}

func (s *RedisStorage) hashKey(name string) string {
	return s.namespace + ":cache:" + name
}

func (s *RedisStorage) Open(ctx context.Context, name string) (Cache, error) {
	if err := s.client.SAdd(ctx, s.indexKey(), name).Err(); err != nil {
		return nil, fmt.Errorf("redis: open cache %s: %w", name, err)
	}
	return &redisCache{client: s.client, key: s.hashKey(name)}, nil
}

func (s *RedisStorage) Names(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list caches: %w", err)
	}
	slices.Sort(names)
	return names, nil
}

func (s *RedisStorage) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		removed = p.SRem(ctx, s.indexKey(), name)
		p.Del(ctx, s.hashKey(name))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis: delete cache %s: %w", name, err)
	}
	return removed.Val() > 0, nil
}

type redisCache struct {
	client redis.Cmdable
	key    string
}

func (c *redisCache) Get(ctx context.Context, key string) (*Snapshot, error) {
	data, err := c.client.HGet(ctx, c.key, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return unmarshalSnapshot(data)
}

func (c *redisCache) Put(ctx context.Context, s *Snapshot) error {
	data, err := marshalSnapshot(s)
	if err != nil {
		return err
	}
	if err := c.client.HSet(ctx, c.key, s.Key, data).Err(); err != nil {
		return fmt.Errorf("redis: put %s: %w", s.Key, err)
	}
	return nil
}

func (c *redisCache) Keys(ctx context.Context) ([]string, error) {
	keys, err := c.client.HKeys(ctx, c.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: keys: %w", err)
	}
	slices.Sort(keys)
	return keys, nil
}
