package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// Client expõe o cliente; o main reusa a conexão para as stats do rate limit.
func (r *Redis) Client() *redis.Client { return r.rdb }

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, opts SetOptions) (bool, error) {
	if opts.NX {
		ok, err := r.rdb.SetNX(ctx, key, value, opts.TTL).Result()
		if err != nil {
			return false, fmt.Errorf("redis setnx %s: %w", key, err)
		}
		return ok, nil
	}
	if err := r.rdb.Set(ctx, key, value, opts.TTL).Err(); err != nil {
		return false, fmt.Errorf("redis set %s: %w", key, err)
	}
	return true, nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return n, nil
}

func (r *Redis) Pipeline(ctx context.Context, ops ...Op) ([]Result, error) {
	pipe := r.rdb.Pipeline()
	cmds := make([]redis.Cmder, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case OpGet:
			cmds[i] = pipe.Get(ctx, op.Key)
		case OpIncr:
			cmds[i] = pipe.Incr(ctx, op.Key)
		case OpExists:
			cmds[i] = pipe.Exists(ctx, op.Key)
		default:
			return nil, fmt.Errorf("redis pipeline: unknown op %d", op.Kind)
		}
	}

	// redis.Nil de um GET não é falha do pipeline
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis pipeline: %w", err)
	}

	out := make([]Result, len(ops))
	for i, cmd := range cmds {
		switch c := cmd.(type) {
		case *redis.StringCmd:
			v, err := c.Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("redis pipeline get %s: %w", ops[i].Key, err)
			}
			out[i] = Result{Value: v, Found: true}
		case *redis.IntCmd:
			n, err := c.Result()
			if err != nil {
				return nil, fmt.Errorf("redis pipeline %s: %w", ops[i].Key, err)
			}
			out[i] = Result{Int: n, Found: n > 0 || ops[i].Kind == OpIncr}
		}
	}
	return out, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
