package evaluator

import (
	"context"
	"fmt"
	"time"

	"voltwatch-alert/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RuleStore 规则查询能力（外部规则存储的接口边界）
type RuleStore interface {
	GetEnabledRule(ctx context.Context, userID string, conditionType models.ConditionType) (*models.AlertRule, error)
}

// EventStore 事件存储能力
// InsertEventIfNotCoolingDown 必须是单个可序列化操作：
// 冷却检查和插入之间不允许出现应用层的竞争窗口
type EventStore interface {
	GetMostRecentEvent(ctx context.Context, deviceID string, conditionType models.ConditionType) (*models.AlertEvent, error)
	InsertEventIfNotCoolingDown(ctx context.Context, event *models.AlertEvent, cooldown time.Duration) (bool, error)
}

// SampleHistory 最近样本查询能力（电量骤降检测需要上一条样本）
type SampleHistory interface {
	GetLatest(ctx context.Context, deviceID string) (*models.BatterySample, error)
}

// Evaluator 预警评估器
// 对每条遥测样本判断是否需要产生预警事件，并执行冷却去重
type Evaluator struct {
	rules   RuleStore
	events  EventStore
	samples SampleHistory
	logger  *zap.Logger
}

// NewEvaluator 创建评估器
func NewEvaluator(rules RuleStore, events EventStore, samples SampleHistory, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		rules:   rules,
		events:  events,
		samples: samples,
		logger:  logger,
	}
}

// Evaluate 评估一条遥测样本，返回新产生的预警事件列表
// 一条样本可能同时越过多个条件（电量 + 温度），逐条件独立评估。
// 事件存储不可用时该条件失败关闭（不产生事件），错误返回给调用方，
// 但不影响其他条件已产生的事件。
func (e *Evaluator) Evaluate(ctx context.Context, sample *models.BatterySample, device *models.Device, cfg *models.DeviceConfig) ([]*models.AlertEvent, error) {
	if sample == nil {
		return nil, fmt.Errorf("sample is required")
	}
	if sample.RecordedAt.IsZero() {
		return nil, fmt.Errorf("sample recorded_at is required")
	}
	if device == nil {
		return nil, fmt.Errorf("device is required")
	}
	if device.OwnerID == "" {
		return nil, fmt.Errorf("device owner is required")
	}
	if cfg == nil {
		cfg = models.DefaultDeviceConfig(device.ID)
	}

	var violations []*violation

	if v := checkBattery(sample, cfg); v != nil {
		violations = append(violations, v)
	}
	if v := checkTemperature(sample, cfg); v != nil {
		violations = append(violations, v)
	}

	// 电量骤降需要上一条样本；缓存不可用只降级跳过该条件
	if previous, err := e.samples.GetLatest(ctx, device.ID); err != nil {
		e.logger.Warn("Failed to load previous sample, skipping rapid drain check",
			zap.String("device_id", device.ID),
			zap.Error(err),
		)
	} else if rate, ok := drainRate(sample, previous); ok {
		// 阈值在规则里，先以 0 占位，triggerViolation 中按规则过滤
		violations = append(violations, rapidDrainViolation(rate, 0))
	}

	var events []*models.AlertEvent
	var firstErr error

	for _, v := range violations {
		event, err := e.triggerViolation(ctx, device, v, sample.RecordedAt)
		if err != nil {
			e.logger.Error("Failed to evaluate condition",
				zap.String("device_id", device.ID),
				zap.String("condition_type", string(v.ConditionType)),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if event != nil {
			events = append(events, event)
		}
	}

	return events, firstErr
}

// EvaluateOffline 评估设备离线条件（由离线检测器调用）
func (e *Evaluator) EvaluateOffline(ctx context.Context, device *models.Device) (*models.AlertEvent, error) {
	if device == nil {
		return nil, fmt.Errorf("device is required")
	}
	if device.OwnerID == "" {
		return nil, fmt.Errorf("device owner is required")
	}

	return e.triggerViolation(ctx, device, offlineViolation(), time.Now())
}

// triggerViolation 对单个越界条件执行规则查找、冷却去重和事件落库
// 返回 (nil, nil) 表示无规则、未越过规则阈值或处于冷却期（正常控制流）
func (e *Evaluator) triggerViolation(ctx context.Context, device *models.Device, v *violation, triggeredAt time.Time) (*models.AlertEvent, error) {
	rule, err := e.rules.GetEnabledRule(ctx, device.OwnerID, v.ConditionType)
	if err != nil {
		return nil, fmt.Errorf("failed to look up rule: %w", err)
	}
	if rule == nil {
		e.logger.Debug("No enabled rule for condition",
			zap.String("device_id", device.ID),
			zap.String("condition_type", string(v.ConditionType)),
		)
		return nil, nil
	}

	// 电量骤降的阈值来自规则本身
	if v.ConditionType == models.ConditionRapidDrain {
		if v.Value < rule.ThresholdValue {
			return nil, nil
		}
		v = rapidDrainViolation(v.Value, rule.ThresholdValue)
	}

	event := &models.AlertEvent{
		ID:            uuid.New().String(),
		DeviceID:      device.ID,
		RuleID:        rule.ID,
		ConditionType: v.ConditionType,
		Level:         rule.Level,
		Status:        models.StatusActive,
		Message:       v.Message,
		Value:         v.Value,
		Threshold:     v.Threshold,
		TriggeredAt:   triggeredAt,
	}

	inserted, err := e.events.InsertEventIfNotCoolingDown(ctx, event, rule.Cooldown())
	if err != nil {
		return nil, fmt.Errorf("failed to insert alert event: %w", err)
	}
	if !inserted {
		e.logger.Debug("Alert suppressed by cooldown",
			zap.String("device_id", device.ID),
			zap.String("condition_type", string(v.ConditionType)),
			zap.Int("cooldown_minutes", rule.CooldownMinutes),
		)
		return nil, nil
	}

	e.logger.Info("Alert event created",
		zap.String("event_id", event.ID),
		zap.String("device_id", device.ID),
		zap.String("condition_type", string(v.ConditionType)),
		zap.String("level", string(rule.Level)),
		zap.Float64("value", v.Value),
		zap.Float64("threshold", v.Threshold),
	)

	return event, nil
}
