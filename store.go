package main

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// store is the shared membership and counter store. Every method may fail
// with an error wrapping errStoreUnavailable.
type store interface {
	addMember(ctx context.Context, key, member string) error
	removeMember(ctx context.Context, key, member string) error
	// members returns an empty slice for a set that does not exist.
	members(ctx context.Context, key string) ([]string, error)
	// counter reports present=false for a missing or expired counter.
	counter(ctx context.Context, key string) (value int64, present bool, err error)
	setCounter(ctx context.Context, key string, value int64, ttl time.Duration) error
	incrCounter(ctx context.Context, key string) (int64, error)
	close() error
}

const (
	storeRedis  = "redis"
	storeMemory = "memory"
)

func roomKey(room string) string {
	return "chat_session:" + room + ":members"
}

func rateKey(clientAddr string) string {
	return "rate_limit:" + clientAddr
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", errStoreUnavailable, op, err)
}

// openStore builds the store named by cfg.storeKind.
func openStore(ctx context.Context, cfg config) (store, error) {
	switch strings.ToLower(cfg.storeKind) {
	case storeRedis:
		return dialRedisStore(ctx, cfg.redisURL)
	case storeMemory:
		return newMemoryStore(time.Now), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.storeKind)
	}
}
