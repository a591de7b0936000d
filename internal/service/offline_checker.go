package service

import (
	"context"
	"time"

	"voltwatch-alert/internal/config"
	"voltwatch-alert/internal/models"

	"go.uber.org/zap"
)

// DeviceScanner 离线候选设备查询能力
type DeviceScanner interface {
	ListOfflineCandidates(ctx context.Context, multiplier int, now time.Time) ([]*models.Device, error)
}

// OfflineEvaluator 离线条件评估能力
type OfflineEvaluator interface {
	EvaluateOffline(ctx context.Context, device *models.Device) (*models.AlertEvent, error)
}

// NotifyFunc 事件通知回调（解析偏好并分发）
type NotifyFunc func(ctx context.Context, event *models.AlertEvent, device *models.Device)

// OfflineChecker 设备离线检测器
// 周期性扫描超过 report_interval × N 未上报的设备，
// 走与遥测样本相同的评估→通知链路产生 device_offline 事件。
// 冷却机制天然防止对同一台持续离线的设备反复告警。
type OfflineChecker struct {
	config    *config.Config
	devices   DeviceScanner
	evaluator OfflineEvaluator
	notify    NotifyFunc
	logger    *zap.Logger
}

// NewOfflineChecker 创建离线检测器
func NewOfflineChecker(cfg *config.Config, devices DeviceScanner, eval OfflineEvaluator, notify NotifyFunc, logger *zap.Logger) *OfflineChecker {
	return &OfflineChecker{
		config:    cfg,
		devices:   devices,
		evaluator: eval,
		notify:    notify,
		logger:    logger,
	}
}

// Run 启动检测循环（阻塞直到 ctx 取消）
func (c *OfflineChecker) Run(ctx context.Context) {
	interval := c.config.Alert.Offline.CheckInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}

	c.logger.Info("Offline checker started",
		zap.Duration("check_interval", interval),
		zap.Int("interval_multiplier", c.config.Alert.Offline.IntervalMultiplier),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Offline checker stopped")
			return
		case <-ticker.C:
			c.checkOnce(ctx)
		}
	}
}

// checkOnce 执行一轮离线检测
func (c *OfflineChecker) checkOnce(ctx context.Context) {
	candidates, err := c.devices.ListOfflineCandidates(ctx, c.config.Alert.Offline.IntervalMultiplier, time.Now())
	if err != nil {
		c.logger.Error("Failed to list offline candidates", zap.Error(err))
		return
	}

	for _, device := range candidates {
		event, err := c.evaluator.EvaluateOffline(ctx, device)
		if err != nil {
			c.logger.Error("Failed to evaluate offline condition",
				zap.String("device_id", device.ID),
				zap.Error(err),
			)
			continue
		}
		if event == nil {
			// 无规则或冷却期内
			continue
		}

		c.notify(ctx, event, device)
	}
}
