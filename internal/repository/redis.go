package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"detailbook/internal/config"
	"detailbook/internal/models"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// generationTTL outlives any read-to-write window by a wide margin; an expired
// generation only makes in-flight writes miss.
const generationTTL = 30 * 24 * time.Hour

var errStaleGeneration = errors.New("slot cache generation moved")

// RedisSlotCache keeps one hash per civil date so a single DEL drops every
// cached slot list of that day. A counter per date records invalidations.
type RedisSlotCache struct {
	client *redis.Client
	prefix string
}

func NewRedisSlotCache(client *redis.Client) *RedisSlotCache {
	return &RedisSlotCache{client: client, prefix: "slots:"}
}

func (r *RedisSlotCache) dayKey(date string) string {
	return r.prefix + date
}

func (r *RedisSlotCache) genKey(date string) string {
	return r.prefix + "gen:" + date
}

func (r *RedisSlotCache) GetSlots(ctx context.Context, date, key string) ([]models.Slot, bool, error) {
	if r.client == nil {
		return nil, false, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.HGet(ctx, r.dayKey(date), key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get slots from redis: %w", err)
	}

	var slots []models.Slot
	if err := json.Unmarshal([]byte(val), &slots); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal slots: %w", err)
	}
	return slots, true, nil
}

func (r *RedisSlotCache) Generation(ctx context.Context, date string) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("redis client is nil")
	}
	return r.generation(ctx, r.client, date)
}

func (r *RedisSlotCache) generation(ctx context.Context, c redis.Cmdable, date string) (string, error) {
	gen, err := c.Get(ctx, r.genKey(date)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get slot generation from redis: %w", err)
	}
	return gen, nil
}

// SetSlots writes under WATCH on the generation key, so an invalidation that
// lands between the check and the write aborts it.
func (r *RedisSlotCache) SetSlots(ctx context.Context, date, generation, key string, slots []models.Slot, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if slots == nil {
		slots = []models.Slot{}
	}
	data, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("failed to marshal slots: %w", err)
	}

	dayKey := r.dayKey(date)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := r.generation(ctx, tx, date)
		if err != nil {
			return err
		}
		if current != generation {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, dayKey, key, data)
			if ttl > 0 {
				pipe.Expire(ctx, dayKey, ttl)
			}
			return nil
		})
		return err
	}, r.genKey(date))

	switch {
	case err == nil, errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		return nil
	default:
		return fmt.Errorf("failed to set slots in redis: %w", err)
	}
}

func (r *RedisSlotCache) InvalidateDate(ctx context.Context, date string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, r.genKey(date))
		pipe.Expire(ctx, r.genKey(date), generationTTL)
		pipe.Del(ctx, r.dayKey(date))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate slots in redis: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
