package counter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a Redis client as a Store. All primitives map to
// single Redis commands (or one pipeline), so they stay atomic under
// arbitrarily many concurrent callers.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return s.IncrBy(ctx, key, 1, ttl)
}

func (s *redisStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	n, err := s.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, err
	}
	if n == delta && ttl > 0 {
		// First write created the key; attach the window expiry.
		_ = s.client.Expire(ctx, key, ttl).Err()
	}
	return n, nil
}

func (s *redisStore) Get(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (s *redisStore) AddToSet(ctx context.Context, key, member string, ttl time.Duration) error {
	pipe := s.client.Pipeline()
	add := pipe.SAdd(ctx, key, member)
	exists := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if add.Val() > 0 && exists.Val() < 0 && ttl > 0 {
		return s.client.Expire(ctx, key, ttl).Err()
	}
	return nil
}

func (s *redisStore) SetCard(ctx context.Context, key string) (int64, error) {
	return s.client.SCard(ctx, key).Result()
}

func (s *redisStore) UpsertScore(ctx context.Context, key, member string, score float64) error {
	return s.client.ZAdd(ctx, key, redis.Z{Member: member, Score: score}).Err()
}

func (s *redisStore) TopK(ctx context.Context, key string, k int64) ([]ScoredMember, error) {
	zs, err := s.client.ZRevRangeWithScores(ctx, key, 0, k-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, ScoredMember{Member: member, Score: z.Score})
	}
	return out, nil
}
