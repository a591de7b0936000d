package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"voltwatch-alert/internal/config"
	"voltwatch-alert/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// BatteryCache 最新样本缓存
// 保存每台设备最近一条遥测样本，电量骤降检测用它做回看基线
type BatteryCache struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewBatteryCache 创建电量缓存
func NewBatteryCache(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *BatteryCache {
	return &BatteryCache{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// latestKey 构建最新样本缓存键
func (c *BatteryCache) latestKey(deviceID string) string {
	return c.config.Alert.Cache.LatestKeyPrefix + deviceID
}

// SetLatest 写入设备最新样本（带 TTL）
func (c *BatteryCache) SetLatest(ctx context.Context, sample *models.BatterySample) error {
	if sample == nil {
		return fmt.Errorf("sample is required")
	}
	if sample.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}

	jsonData, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}

	ttl := time.Duration(c.config.Alert.Cache.LatestTTL) * time.Second
	if err := c.redisClient.Set(ctx, c.latestKey(sample.DeviceID), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache latest sample: %w", err)
	}

	return nil
}

// GetLatest 获取设备最近一条样本
// 缓存未命中返回 (nil, nil)
func (c *BatteryCache) GetLatest(ctx context.Context, deviceID string) (*models.BatterySample, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	val, err := c.redisClient.Get(ctx, c.latestKey(deviceID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest sample: %w", err)
	}

	var sample models.BatterySample
	if err := json.Unmarshal([]byte(val), &sample); err != nil {
		return nil, fmt.Errorf("failed to unmarshal latest sample: %w", err)
	}

	return &sample, nil
}
