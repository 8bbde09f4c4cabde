package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// checkAndRemoveScript is the atomic script primitive (§4.2): it removes
// key only if its stored value equals the expected one, mirroring the
// teacher's Lua-eval-backed RedisRepository.Eval primitive.
const checkAndRemoveScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`

// RedisLiveStore is the production LiveStore, backed by the go-redis/v8
// client cmd/gateway dials.
type RedisLiveStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisLiveStore constructs a RedisLiveStore over an already-dialed
// client.
func NewRedisLiveStore(client *redis.Client, logger *zap.Logger) *RedisLiveStore {
	return &RedisLiveStore{client: client, logger: logger}
}

func (s *RedisLiveStore) GetJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisLiveStore) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, raw, ttl).Err()
}

func (s *RedisLiveStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisLiveStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *RedisLiveStore) SetNXWithTTL(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *RedisLiveStore) CheckAndRemove(ctx context.Context, key, expected string) (bool, error) {
	res, err := s.client.Eval(ctx, checkAndRemoveScript, []string{key}, expected).Result()
	if err != nil {
		return false, err
	}
	n, ok := res.(int64)
	return ok && n > 0, nil
}

func (s *RedisLiveStore) ZAdd(ctx context.Context, key, member string, score float64) error {
	return s.client.ZAdd(ctx, key, &redis.Z{Score: score, Member: member}).Err()
}

func (s *RedisLiveStore) ZRem(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.ZRem(ctx, key, args...).Err()
}

func (s *RedisLiveStore) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	return s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
}

func (s *RedisLiveStore) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := s.client.ZScore(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

func (s *RedisLiveStore) ZIsMember(ctx context.Context, key, member string) (bool, error) {
	_, found, err := s.ZScore(ctx, key, member)
	return found, err
}

func (s *RedisLiveStore) Close() error {
	return s.client.Close()
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
