package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig carries connection settings for the Redis backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type redisStore struct {
	client *redis.Client
}

// ConnectRedis dials Redis and verifies the connection before returning.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     20,
		MinIdleConns: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w: %v", ErrUnavailable, err)
	}
	return &redisStore{client: client}, nil
}

func (s *redisStore) Get(ctx context.Context, key string) (Record, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, unavailable("read "+key, err)
	}
	return Record(m), nil
}

func (s *redisStore) Apply(ctx context.Context, keys []string, fn func(view map[string]Record) (*Mutation, error)) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond

	run := func(tx *redis.Tx) error {
		view := make(map[string]Record, len(keys))
		for _, k := range keys {
			m, err := tx.HGetAll(ctx, k).Result()
			if err != nil {
				return unavailable("read "+k, err)
			}
			view[k] = Record(m)
		}
		mut, err := fn(view)
		if err != nil {
			return err
		}
		if mut == nil {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for k, rec := range mut.Set {
				if len(rec) == 0 {
					continue
				}
				args := make(map[string]interface{}, len(rec))
				for f, v := range rec {
					args[f] = v
				}
				pipe.HSet(ctx, k, args)
			}
			for k, vals := range mut.Append {
				if len(vals) == 0 {
					continue
				}
				pipe.RPush(ctx, k, toInterfaces(vals)...)
			}
			for k, members := range mut.AddTo {
				if len(members) == 0 {
					continue
				}
				pipe.SAdd(ctx, k, toInterfaces(members)...)
			}
			if len(mut.Delete) > 0 {
				pipe.Del(ctx, mut.Delete...)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.client.Watch(ctx, run, keys...)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ErrConflict
}

func (s *redisStore) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, unavailable("range "+key, err)
	}
	return vals, nil
}

func (s *redisStore) ListLen(ctx context.Context, key string) (int64, error) {
	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, unavailable("len "+key, err)
	}
	return n, nil
}

func (s *redisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, unavailable("members "+key, err)
	}
	return members, nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

func toInterfaces(vals []string) []interface{} {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
