package reservation

import (
	"context"
	"encoding/json"
	"time"

	"voltslot/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// SlotCache memoizes slot listings per connector. It is best-effort: failures
// are logged and treated as misses. Invalidate bumps the connector's
// generation; listings are keyed by the generation read before the store, so
// a listing computed across an invalidation lands on a key nobody reads.
type SlotCache interface {
	Generation(ctx context.Context, connectorID string) int64
	Get(ctx context.Context, key string) ([]models.AvailableSlot, bool)
	Set(ctx context.Context, connectorID, key string, slots []models.AvailableSlot, ttl time.Duration)
	Invalidate(ctx context.Context, connectorID string)
}

// NopSlotCache disables caching.
type NopSlotCache struct{}

func (NopSlotCache) Generation(context.Context, string) int64 { return 0 }
func (NopSlotCache) Get(context.Context, string) ([]models.AvailableSlot, bool) { return nil, false }
func (NopSlotCache) Set(context.Context, string, string, []models.AvailableSlot, time.Duration) {
}
func (NopSlotCache) Invalidate(context.Context, string) {}

// RedisSlotCache stores listings as JSON and tracks each connector's keys in a
// set so a booking can drop all of them at once.
type RedisSlotCache struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisSlotCache(client *redis.Client, logger *zap.Logger) *RedisSlotCache {
	return &RedisSlotCache{client: client, logger: logger}
}

func slotIndexKey(connectorID string) string {
	return "slots:index:" + connectorID
}

func slotGenerationKey(connectorID string) string {
	return "slots:gen:" + connectorID
}

// Generation returns -1 when Redis cannot be read, which the service treats
// as "do not cache".
func (c *RedisSlotCache) Generation(ctx context.Context, connectorID string) int64 {
	gen, err := c.client.Get(ctx, slotGenerationKey(connectorID)).Int64()
	if err == redis.Nil {
		return 0
	}
	if err != nil {
		c.logger.Warn("slot cache generation read failed", zap.String("connectorId", connectorID), zap.Error(err))
		return -1
	}
	return gen
}

func (c *RedisSlotCache) Get(ctx context.Context, key string) ([]models.AvailableSlot, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("slot cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	var slots []models.AvailableSlot
	if err := json.Unmarshal(raw, &slots); err != nil {
		c.logger.Warn("slot cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return slots, true
}

func (c *RedisSlotCache) Set(ctx context.Context, connectorID, key string, slots []models.AvailableSlot, ttl time.Duration) {
	raw, err := json.Marshal(slots)
	if err != nil {
		return
	}
	idx := slotIndexKey(connectorID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, raw, ttl)
		pipe.SAdd(ctx, idx, key)
		pipe.Expire(ctx, idx, 24*time.Hour)
		return nil
	})
	if err != nil {
		c.logger.Warn("slot cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisSlotCache) Invalidate(ctx context.Context, connectorID string) {
	if err := c.client.Incr(ctx, slotGenerationKey(connectorID)).Err(); err != nil {
		c.logger.Warn("slot cache generation bump failed", zap.String("connectorId", connectorID), zap.Error(err))
	}
	idx := slotIndexKey(connectorID)
	keys, err := c.client.SMembers(ctx, idx).Result()
	if err != nil {
		c.logger.Warn("slot cache invalidate failed", zap.String("connectorId", connectorID), zap.Error(err))
		return
	}
	if err := c.client.Del(ctx, append(keys, idx)...).Err(); err != nil {
		c.logger.Warn("slot cache invalidate failed", zap.String("connectorId", connectorID), zap.Error(err))
	}
}
