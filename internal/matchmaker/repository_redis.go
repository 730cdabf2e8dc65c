package matchmaker

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// key 约定：
//
//	list: mm:queue:{code} -> ids, oldest at the head
//
// Redis deletes a list when its last element is removed, so an empty queue
// never lingers.
const queuePrefix = "mm:queue:"

func queueKey(code string) string {
	return queuePrefix + code
}

// KEYS[1] = queue key
var popPairScript = redis.NewScript(`
if redis.call("LLEN", KEYS[1]) < 2 then
    return {}
end
local first = redis.call("LPOP", KEYS[1])
local second = redis.call("LPOP", KEYS[1])
return {first, second}
`)

type redisRepo struct {
	rdb *redis.Client
}

func NewRedisRepo(rdb *redis.Client) Repo {
	return &redisRepo{rdb: rdb}
}

func (r *redisRepo) Enqueue(ctx context.Context, code, id string) (int64, error) {
	n, err := r.rdb.RPush(ctx, queueKey(code), id).Result()
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", code, err)
	}
	return n, nil
}

func (r *redisRepo) PopPair(ctx context.Context, code string) ([]string, error) {
	res, err := popPairScript.Run(ctx, r.rdb, []string{queueKey(code)}).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("pop pair %s: %w", code, err)
	}
	if len(res) < 2 {
		return nil, nil
	}
	return res, nil
}

func (r *redisRepo) Remove(ctx context.Context, code, id string) error {
	if err := r.rdb.LRem(ctx, queueKey(code), 0, id).Err(); err != nil {
		return fmt.Errorf("remove %s from %s: %w", id, code, err)
	}
	return nil
}

func (r *redisRepo) Count(ctx context.Context, code string) (int64, error) {
	return r.rdb.LLen(ctx, queueKey(code)).Result()
}

func (r *redisRepo) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.rdb.Scan(ctx, 0, queuePrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (r *redisRepo) Snapshot(ctx context.Context) (map[string]int64, error) {
	keys, err := r.keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan queues: %w", err)
	}
	out := make(map[string]int64, len(keys))
	for _, key := range keys {
		n, err := r.rdb.LLen(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("llen %s: %w", key, err)
		}
		if n > 0 {
			out[strings.TrimPrefix(key, queuePrefix)] = n
		}
	}
	return out, nil
}

// Reset runs at startup: the connections behind any stored ids died with
// the previous process.
func (r *redisRepo) Reset(ctx context.Context) error {
	keys, err := r.keys(ctx)
	if err != nil {
		return fmt.Errorf("scan queues: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return r.rdb.Del(ctx, keys...).Err()
}
