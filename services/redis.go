package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"socialgraph/config"

	"github.com/go-redis/redis/v8"
)

var RedisClient *redis.Client

func InitRedis(conf *config.ConfigSchema) error {
	if conf == nil {
		return fmt.Errorf("AppConfig is not loaded")
	}

	redisConfig := conf.Redis
	RedisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		_ = CloseRedis()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// CloseRedis closes and clears RedisClient
func CloseRedis() error {
	if RedisClient == nil {
		return nil
	}
	err := RedisClient.Close()
	RedisClient = nil
	return err
}

// FriendsCache holds the derived friend-id set per user. Every
// invalidation bumps the user's generation; a fill only lands if the
// generation it read before deriving is still current.
type FriendsCache interface {
	Get(ctx context.Context, userID int64) ([]int64, bool, error)
	Generation(ctx context.Context, userID int64) (int64, error)
	Set(ctx context.Context, userID, generation int64, friendIDs []int64) error
	Invalidate(ctx context.Context, userIDs ...int64) error
}

type noopFriendsCache struct{}

func (noopFriendsCache) Get(context.Context, int64) ([]int64, bool, error) { return nil, false, nil }
func (noopFriendsCache) Generation(context.Context, int64) (int64, error)   { return 0, nil }
func (noopFriendsCache) Set(context.Context, int64, int64, []int64) error  { return nil }
func (noopFriendsCache) Invalidate(context.Context, ...int64) error        { return nil }

const (
	friendsKeyPrefix    = "friends:"
	friendsGenKeyPrefix = "friends:gen:"
	// outlives any fill by far; an expired counter only makes fills miss
	friendsGenTTL = 24 * time.Hour
)

func friendsCacheKey(userID int64) string {
	return fmt.Sprintf("%s%d", friendsKeyPrefix, userID)
}

func friendsGenKey(userID int64) string {
	return fmt.Sprintf("%s%d", friendsGenKeyPrefix, userID)
}

type RedisFriendsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisFriendsCache(client *redis.Client, ttl time.Duration) *RedisFriendsCache {
	return &RedisFriendsCache{client: client, ttl: ttl}
}

func (c *RedisFriendsCache) Get(ctx context.Context, userID int64) ([]int64, bool, error) {
	data, err := c.client.Get(ctx, friendsCacheKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read friends cache: %w", err)
	}
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, false, fmt.Errorf("failed to decode friends cache: %w", err)
	}
	return ids, true, nil
}

func (c *RedisFriendsCache) Generation(ctx context.Context, userID int64) (int64, error) {
	return readGeneration(ctx, c.client, userID)
}

type generationGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, r generationGetter, userID int64) (int64, error) {
	gen, err := r.Get(ctx, friendsGenKey(userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read friends cache generation: %w", err)
	}
	return gen, nil
}

// Set writes friendIDs under WATCH of the generation key. A fill whose
// generation is stale, or that races an Invalidate, is dropped.
func (c *RedisFriendsCache) Set(ctx context.Context, userID, generation int64, friendIDs []int64) error {
	data, err := json.Marshal(friendIDs)
	if err != nil {
		return fmt.Errorf("failed to encode friends cache: %w", err)
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, userID)
		if err != nil {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, friendsCacheKey(userID), data, c.ttl)
			return nil
		})
		return err
	}, friendsGenKey(userID))
	if err == redis.TxFailedErr {
		return nil
	}
	return err
}

func (c *RedisFriendsCache) Invalidate(ctx context.Context, userIDs ...int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	pipe := c.client.TxPipeline()
	for _, id := range userIDs {
		pipe.Incr(ctx, friendsGenKey(id))
		pipe.Expire(ctx, friendsGenKey(id), friendsGenTTL)
		pipe.Del(ctx, friendsCacheKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate friends cache: %w", err)
	}
	return nil
}

// RateLimiter answers whether one more action under key is allowed now
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisRateLimiter is a fixed-window counter: at most limit actions per
// key per window.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, limit: int64(limit), window: window, now: time.Now}
}

func rateLimitKey(key string, at time.Time, window time.Duration) string {
	return fmt.Sprintf("ratelimit:%s:%d", key, at.UnixNano()/int64(window))
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	windowKey := rateLimitKey(key, l.now(), l.window)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to update rate limit counter: %w", err)
	}
	return incr.Val() <= l.limit, nil
}
