package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"goa.design/relay/relay"
)

// Redis is a Backend implemented on top of a Redis client. It also
// implements Claimer using Lua scripts.
type Redis struct {
	rdb              *redis.Client
	logger           relay.Logger
	lockLease        time.Duration
	lockRetryInitial time.Duration
	lockRetryMax     time.Duration
}

var (
	_ Backend = (*Redis)(nil)
	_ Claimer = (*Redis)(nil)
)

// NewRedis returns a backend that uses rdb for all operations.
func NewRedis(rdb *redis.Client, opts ...RedisOption) *Redis {
	o := parseRedisOptions(opts...)
	return &Redis{
		rdb:              rdb,
		logger:           o.logger.WithPrefix("backend", "redis"),
		lockLease:        o.lockLease,
		lockRetryInitial: o.lockRetryInitial,
		lockRetryMax:     o.lockRetryMax,
	}
}

// Client returns the underlying Redis client.
func (r *Redis) Client() *redis.Client {
	return r.rdb
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	return optional(r.rdb.Get(ctx, key).Result())
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return n > 0, nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check %q: %w", key, err)
	}
	return n > 0, nil
}

func (r *Redis) Purge(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := r.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to purge keys: %w", err)
	}
	return n, nil
}

func (r *Redis) PushFront(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	if err := r.rdb.LPush(ctx, key, toAny(values)...).Err(); err != nil {
		return fmt.Errorf("failed to push to front of %q: %w", key, err)
	}
	return nil
}

func (r *Redis) PushBack(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	if err := r.rdb.RPush(ctx, key, toAny(values)...).Err(); err != nil {
		return fmt.Errorf("failed to push to back of %q: %w", key, err)
	}
	return nil
}

func (r *Redis) PopFront(ctx context.Context, key string) (string, bool, error) {
	return optional(r.rdb.LPop(ctx, key).Result())
}

func (r *Redis) PopBack(ctx context.Context, key string) (string, bool, error) {
	return optional(r.rdb.RPop(ctx, key).Result())
}

func (r *Redis) PeekFront(ctx context.Context, key string) (string, bool, error) {
	return optional(r.rdb.LIndex(ctx, key, 0).Result())
}

func (r *Redis) Len(ctx context.Context, key string) (int64, error) {
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get length of %q: %w", key, err)
	}
	return n, nil
}

func (r *Redis) HSet(ctx context.Context, key, field, value string) error {
	if err := r.rdb.HSet(ctx, key, field, value).Err(); err != nil {
		return fmt.Errorf("failed to set field %q of %q: %w", field, key, err)
	}
	return nil
}

func (r *Redis) HGet(ctx context.Context, key, field string) (string, bool, error) {
	return optional(r.rdb.HGet(ctx, key, field).Result())
}

func (r *Redis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return m, nil
}

func (r *Redis) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	n, err := r.rdb.HDel(ctx, key, fields...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete fields of %q: %w", key, err)
	}
	return n, nil
}

// HReplace deletes key and writes values in a single MULTI/EXEC
// transaction so readers never observe a partial map.
func (r *Redis) HReplace(ctx context.Context, key string, values map[string]string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			args := make([]any, 0, 2*len(values))
			for f, v := range values {
				args = append(args, f, v)
			}
			pipe.HSet(ctx, key, args...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace %q: %w", key, err)
	}
	return nil
}

func (r *Redis) ZAdd(ctx context.Context, key string, score float64, member string) (bool, error) {
	n, err := r.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Result()
	if err != nil {
		return false, fmt.Errorf("failed to add to %q: %w", key, err)
	}
	return n > 0, nil
}

func (r *Redis) ZRem(ctx context.Context, key, member string) (bool, error) {
	n, err := r.rdb.ZRem(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("failed to remove from %q: %w", key, err)
	}
	return n > 0, nil
}

func (r *Redis) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]ScoredMember, error) {
	zs, err := r.rdb.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to range %q: %w", key, err)
	}
	members := make([]ScoredMember, len(zs))
	for i, z := range zs {
		members[i] = ScoredMember{Member: fmt.Sprint(z.Member), Score: z.Score}
	}
	return members, nil
}

func (r *Redis) ZMax(ctx context.Context, key string) (float64, bool, error) {
	m, ok, err := r.ZPeekMax(ctx, key)
	return m.Score, ok, err
}

func (r *Redis) ZPeekMax(ctx context.Context, key string) (ScoredMember, bool, error) {
	zs, err := r.rdb.ZRevRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return ScoredMember{}, false, fmt.Errorf("failed to read max of %q: %w", key, err)
	}
	if len(zs) == 0 {
		return ScoredMember{}, false, nil
	}
	return ScoredMember{Member: fmt.Sprint(zs[0].Member), Score: zs[0].Score}, true, nil
}

func (r *Redis) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := r.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count %q: %w", key, err)
	}
	return n, nil
}

// ClaimMax atomically moves the highest score member of zkey into the JSON
// ledger list stored in field of hkey.
func (r *Redis) ClaimMax(ctx context.Context, zkey, hkey, field string) (string, bool, error) {
	v, ok, err := optional(luaClaimMax.Run(ctx, r.rdb, []string{zkey, hkey}, field).Text())
	if err != nil {
		return "", false, fmt.Errorf("failed to claim from %q: %w", zkey, err)
	}
	return v, ok, nil
}

// ClaimFront atomically moves the head of lkey into the JSON ledger list
// stored in field of hkey.
func (r *Redis) ClaimFront(ctx context.Context, lkey, hkey, field string) (string, bool, error) {
	v, ok, err := optional(luaClaimFront.Run(ctx, r.rdb, []string{lkey, hkey}, field).Text())
	if err != nil {
		return "", false, fmt.Errorf("failed to claim from %q: %w", lkey, err)
	}
	return v, ok, nil
}

// AppendItem atomically appends value to the JSON ledger list stored in
// field of hkey.
func (r *Redis) AppendItem(ctx context.Context, hkey, field, value string) error {
	if err := luaAppendItem.Run(ctx, r.rdb, []string{hkey}, field, value).Err(); err != nil {
		return fmt.Errorf("failed to append to %q of %q: %w", field, hkey, err)
	}
	return nil
}

// RemoveItem atomically removes one occurrence of value from the JSON ledger
// list stored in field of hkey.
func (r *Redis) RemoveItem(ctx context.Context, hkey, field, value string) (bool, error) {
	n, err := luaRemoveItem.Run(ctx, r.rdb, []string{hkey}, field, value).Int()
	if err != nil {
		return false, fmt.Errorf("failed to remove from %q of %q: %w", field, hkey, err)
	}
	return n == 1, nil
}

// optional turns a redis.Nil reply into an absent value.
func optional(v string, err error) (string, bool, error) {
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func formatScore(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toAny(values []string) []any {
	res := make([]any, len(values))
	for i, v := range values {
		res[i] = v
	}
	return res
}
