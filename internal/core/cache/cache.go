package cache

import (
	"context"

	"github.com/SrushtiQL/i4c/internal/infrastructure/config"
)

// Store 字串鍵值緩存
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// NewStore 依設定選擇緩存後端；停用時回傳 nil
func NewStore(cfg *config.CacheConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Backend == "redis" {
		svc, err := NewService(cfg)
		if err != nil {
			return nil, err
		}
		return svc, nil
	}
	return NewManager(cfg), nil
}
