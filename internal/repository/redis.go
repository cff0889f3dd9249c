package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"signaldesk/internal/config"
	"signaldesk/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	stateKeyPrefix     = "signaldesk:state:"
	rateLimitKeyPrefix = "signaldesk:rl:"
)

var errNilClient = errors.New("redis client is nil")

// stateRecord формат сессии в Redis.
type stateRecord struct {
	Step      string                 `json:"step"`
	Data      map[string]interface{} `json:"data,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// RedisStateRepository keeps wizard sessions and message counters in Redis.
type RedisStateRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisStateRepository(client *redis.Client, ttl time.Duration) *RedisStateRepository {
	return &RedisStateRepository{
		client: client,
		ttl:    ttl,
	}
}

func stateKey(userID int64) string {
	return fmt.Sprintf("%s%d", stateKeyPrefix, userID)
}

func (r *RedisStateRepository) GetState(ctx context.Context, userID int64) (*models.UserState, error) {
	if r.client == nil {
		return nil, errNilClient
	}
	raw, err := r.client.Get(ctx, stateKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get state: %w", err)
	}

	var rec stateRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &models.UserState{
		UserID:      userID,
		CurrentStep: rec.Step,
		TempData:    rec.Data,
	}, nil
}

// SetState перезаписывает сессию и продлевает ttl.
func (r *RedisStateRepository) SetState(ctx context.Context, state *models.UserState) error {
	if r.client == nil {
		return errNilClient
	}
	data, err := json.Marshal(stateRecord{
		Step:      state.CurrentStep,
		Data:      state.TempData,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := r.client.Set(ctx, stateKey(state.UserID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set state: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) ClearState(ctx context.Context, userID int64) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.Del(ctx, stateKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del state: %w", err)
	}
	return nil
}

// CheckRateLimit is a fixed window counter; the window starts with the first hit.
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	key := fmt.Sprintf("%s%d", rateLimitKeyPrefix, userID)

	hits, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	if hits == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("redis rate limit expire: %w", err)
		}
	}
	return hits <= int64(limit), nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
