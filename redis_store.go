package main

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	rdb *redis.Client
}

// dialRedisStore connects to url and checks the server answers.
func dialRedisStore(ctx context.Context, url string) (*redisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	s := newRedisStore(redis.NewClient(opts))
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		s.rdb.Close()
		return nil, storeError("ping", err)
	}
	return s, nil
}

func newRedisStore(rdb *redis.Client) *redisStore {
	return &redisStore{rdb: rdb}
}

func (s *redisStore) addMember(ctx context.Context, key, member string) error {
	if err := s.rdb.SAdd(ctx, key, member).Err(); err != nil {
		return storeError("sadd", err)
	}
	return nil
}

func (s *redisStore) removeMember(ctx context.Context, key, member string) error {
	if err := s.rdb.SRem(ctx, key, member).Err(); err != nil {
		return storeError("srem", err)
	}
	return nil
}

func (s *redisStore) members(ctx context.Context, key string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, storeError("smembers", err)
	}
	return members, nil
}

func (s *redisStore) counter(ctx context.Context, key string) (int64, bool, error) {
	v, err := s.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storeError("get", err)
	}
	return v, true, nil
}

func (s *redisStore) setCounter(ctx context.Context, key string, value int64, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return storeError("set", err)
	}
	return nil
}

func (s *redisStore) incrCounter(ctx context.Context, key string) (int64, error) {
	v, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, storeError("incr", err)
	}
	return v, nil
}

func (s *redisStore) close() error {
	return s.rdb.Close()
}
