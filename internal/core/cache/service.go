package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/SrushtiQL/i4c/internal/infrastructure/config"
	"github.com/SrushtiQL/i4c/internal/pkg/common"
)

const keyPrefix = "reformulation:"

// Service Redis 緩存服務
type Service struct {
	client *redis.Client
	config *config.CacheConfig
}

// NewService 創建緩存服務
func NewService(cfg *config.CacheConfig) (*Service, error) {
	if !cfg.Enabled {
		return &Service{config: cfg}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})

	// 測試連接
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Service{
		client: client,
		config: cfg,
	}, nil
}

// Get 獲取緩存
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	if !s.config.Enabled || s.client == nil {
		return "", common.ErrCacheDisabled
	}

	value, err := s.client.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", common.ErrCacheMiss
		}
		return "", fmt.Errorf("failed to get cache: %w", err)
	}
	return value, nil
}

// Set 設置緩存
func (s *Service) Set(ctx context.Context, key, value string) error {
	if !s.config.Enabled || s.client == nil {
		return nil
	}

	if err := s.client.Set(ctx, keyPrefix+key, value, s.config.TTL).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// Ping 檢查 Redis 連線
func (s *Service) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx).Err()
}

// Close 關閉 Redis 連線
func (s *Service) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
