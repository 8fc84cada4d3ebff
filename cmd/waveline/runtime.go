package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"waveline/internal/config"
)

// acquireLock guards against two instances of the same role sharing a data
// directory. The returned release func is safe to call once.
func acquireLock(cfg *config.Config, role string) (func(), error) {
	lockPath := filepath.Join(cfg.Paths.DataDir, "waveline-"+role+".lock")
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire %s lock: %w", role, err)
	}
	if !ok {
		return nil, fmt.Errorf("another waveline %s instance is already running", role)
	}
	return func() { _ = lock.Unlock() }, nil
}

func redisClientOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// pingRedis fails fast when the queue backend is unreachable, instead of
// letting the first enqueue or dequeue discover it.
func pingRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", cfg.Redis.Addr, err)
	}
	return client, nil
}

// redisPinger adapts a go-redis client to the health-probe interface.
type redisPinger struct {
	client *redis.Client
}

func (p *redisPinger) Ping(ctx context.Context) error {
	if p == nil || p.client == nil {
		return errors.New("redis client not initialized")
	}
	return p.client.Ping(ctx).Err()
}
