package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"vda5050-bridge/internal/common/constants"
	keys "vda5050-bridge/internal/common/redis"
	"vda5050-bridge/internal/config"
	"vda5050-bridge/internal/models"
)

// ErrNoState is returned when no state is cached for a vehicle.
var ErrNoState = errors.New("no cached state")

func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

// StateCache 차량별 최신 상태와 연결 상태 캐시
type StateCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStateCache 새 상태 캐시 생성 (ttl <= 0 이면 만료 없음)
func NewStateCache(client *redis.Client, ttl time.Duration) *StateCache {
	if ttl < 0 {
		ttl = 0
	}
	return &StateCache{client: client, ttl: ttl}
}

// SaveState stores s under its manufacturer and serial number.
func (c *StateCache) SaveState(ctx context.Context, s *models.State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	key := keys.VehicleState(s.Manufacturer, s.SerialNumber)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache state %s: %w", key, err)
	}
	return nil
}

// GetState returns the cached state or ErrNoState.
func (c *StateCache) GetState(ctx context.Context, manufacturer, serialNumber string) (*models.State, error) {
	key := keys.VehicleState(manufacturer, serialNumber)
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", key, err)
	}
	var s models.State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", key, err)
	}
	return &s, nil
}

// SaveConnectionState 연결 상태 저장
func (c *StateCache) SaveConnectionState(ctx context.Context, conn *models.Connection) error {
	key := keys.VehicleConnection(conn.Manufacturer, conn.SerialNumber)
	return c.client.Set(ctx, key, conn.ConnectionState, c.ttl).Err()
}

// ConnectionState returns the cached connection state, OFFLINE when unknown.
func (c *StateCache) ConnectionState(ctx context.Context, manufacturer, serialNumber string) (string, error) {
	v, err := c.client.Get(ctx, keys.VehicleConnection(manufacturer, serialNumber)).Result()
	if errors.Is(err, redis.Nil) {
		return constants.ConnectionStateOffline, nil
	}
	return v, err
}
