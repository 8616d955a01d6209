package locking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix        = "conti:lock:group:"
	defaultLockTTL   = 30 * time.Second
	defaultRetryWait = 50 * time.Millisecond
)

// redisStore defines the operations used by Redis.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Redis implements Locker using SETNX with a TTL so several processes can
// share one database. The TTL bounds how long a crashed holder blocks others.
type Redis struct {
	client    redisStore
	ttl       time.Duration
	retryWait time.Duration
}

func NewRedis(client redisStore, ttl time.Duration) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Redis{client: client, ttl: ttl, retryWait: defaultRetryWait}, nil
}

// NewRedisFromURL dials url and verifies connectivity.
func NewRedisFromURL(ctx context.Context, url string, ttl time.Duration) (*Redis, func() error, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis url: %w", err)
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	l, err := NewRedis(clientAdapter{raw}, ttl)
	if err != nil {
		_ = raw.Close()
		return nil, nil, err
	}
	return l, raw.Close, nil
}

func Key(groupID string) string {
	return keyPrefix + groupID
}

func (l *Redis) Lock(ctx context.Context, groupID string) (func(), error) {
	key := Key(groupID)
	owner := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, key, owner, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("setnx: %w", err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(l.retryWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// Release must not be skipped because the caller's ctx was cancelled.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := l.release(rctx, key, owner); err != nil {
			slog.WarnContext(rctx, "Failed to release group lock", "group_id", groupID, "error", err)
		}
	}, nil
}

// release frees the lock only if the owner value still matches.
func (l *Redis) release(ctx context.Context, key, owner string) error {
	value, err := l.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != owner {
		return nil
	}
	if err := l.client.Del(ctx, key); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	return nil
}

type clientAdapter struct {
	c *redis.Client
}

func (a clientAdapter) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	return a.c.SetNX(ctx, key, value, ttl).Result()
}

func (a clientAdapter) Get(ctx context.Context, key string) (string, error) {
	return a.c.Get(ctx, key).Result()
}

func (a clientAdapter) Del(ctx context.Context, keys ...string) error {
	return a.c.Del(ctx, keys...).Err()
}
